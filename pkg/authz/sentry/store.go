package sentry

import (
	"context"
	"strings"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/hadoop"
)

// PolicyStore is the Sentry client the reconciler drives. Every method is a
// blocking remote call.
type PolicyStore interface {
	RoleExists(ctx context.Context, role string) (bool, error)
	CreateRole(ctx context.Context, role string) error
	DropRole(ctx context.Context, role string) error
	GrantRoleToGroup(ctx context.Context, role, group string) error
	GrantPrivilege(ctx context.Context, permission, objectType, objectName, role string) error

	// SetACL grants permission to the comma-delimited groups on the
	// comma-delimited HDFS paths, using the namenode described by conf.
	SetACL(ctx context.Context, conf *hadoop.Configuration, groups, paths, permission string) error

	ListGroups(ctx context.Context) ([]authz.Group, error)
}

// RoleInspector is implemented by stores that can report and revoke the
// individual grants of a role. The diff update strategy requires it.
type RoleInspector interface {
	// RoleGroups returns the groups holding role among candidates and any
	// groups the store can enumerate itself.
	RoleGroups(ctx context.Context, role string, candidates []string) ([]string, error)
	RolePrivileges(ctx context.Context, role string) ([]Privilege, error)
	RevokeRoleFromGroup(ctx context.Context, role, group string) error
	RevokePrivilege(ctx context.Context, permission, objectType, objectName, role string) error
}

// Privilege is a permission on an object, granted to a role.
type Privilege struct {
	Permission string `json:"permission"`
	ObjectType string `json:"objectType"`
	ObjectName string `json:"objectName"`
}

// Key identifies the privilege independent of case.
func (p Privilege) Key() string {
	return strings.ToLower(p.Permission + "|" + p.ObjectType + "|" + p.ObjectName)
}

func (p Privilege) String() string {
	return p.Permission + " on " + p.ObjectType + " " + p.ObjectName
}
