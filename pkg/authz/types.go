// Package authz defines the hadoop authorization service contract shared by
// every authorization backend, together with the policy naming scheme,
// the error kinds returned at the backend boundary and a no-op backend for
// development.
package authz

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Type identifies an authorization backend.
type Type string

const (
	// TypeNone is the no-op backend used when authorization is disabled.
	TypeNone Type = "NONE"
	// TypeSentry provisions policies through Apache Sentry.
	TypeSentry Type = "SENTRY"
)

// Group is a group known to the authorization backend.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// HivePolicy is the desired read-only access to a set of Hive tables.
type HivePolicy struct {
	Category string   `json:"category"`
	Feed     string   `json:"feed"`
	Groups   []string `json:"groups"`
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
}

// HdfsPolicy is the desired read-only access to a set of HDFS paths.
type HdfsPolicy struct {
	Category string   `json:"category"`
	Feed     string   `json:"feed"`
	Groups   []string `json:"groups"`
	Paths    []string `json:"paths"`
}

// Service provisions read-only feed policies in an authorization backend.
type Service interface {
	// Type returns the backend identifier.
	Type() Type

	// ListGroups returns the groups known to the backend.
	ListGroups(ctx context.Context) ([]Group, error)

	// GetGroupByName returns a single known group.
	GetGroupByName(ctx context.Context, name string) (*Group, error)

	// ReconcileHivePolicy converges the backend to the given Hive policy.
	ReconcileHivePolicy(ctx context.Context, policy HivePolicy) error

	// ReconcileHdfsPolicy converges the backend to the given HDFS policy.
	ReconcileHdfsPolicy(ctx context.Context, policy HdfsPolicy) error

	DeleteHivePolicy(ctx context.Context, category, feed string) error
	DeleteHdfsPolicy(ctx context.Context, category, feed string) error

	// UpdateSecurityGroupsForAllPolicies replaces the groups on every policy
	// owned by a feed.
	UpdateSecurityGroupsForAllPolicies(ctx context.Context, category, feed string, groups []string, feedProperties map[string]string) error
}

// Outcome describes one reconcile attempt. Backends hand it to a policy
// ledger after every reconcile, successful or not.
type Outcome struct {
	PolicyName string
	Category   string
	Feed       string
	Kind       string // RepositoryHive or RepositoryHdfs
	Action     string // ActionCreate, ActionUpdate or ActionACL
	Groups     []string
	Objects    []string
	Err        error
}

// Reconcile actions recorded in an Outcome.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionACL    = "acl"
)

// Validate checks the identifiers every reconcile requires. Group, database
// and table names are checked here so that a malformed name fails before the
// backend is touched.
func (p HivePolicy) Validate() error {
	const op = "reconcile hive policy"
	if err := validateFeed(op, p.Category, p.Feed); err != nil {
		return err
	}
	if err := validateGroups(op, p.Groups); err != nil {
		return err
	}
	if len(p.Tables) == 0 && p.Database == "" {
		return nil
	}
	if err := checkObjectName("database", p.Database); err != nil {
		return &Error{Kind: KindInvalidArgument, Op: op, Err: err}
	}
	for _, t := range p.Tables {
		if err := checkObjectName("table", t); err != nil {
			return &Error{Kind: KindInvalidArgument, Op: op, Err: err}
		}
	}
	return nil
}

// Validate checks the identifiers every reconcile requires.
func (p HdfsPolicy) Validate() error {
	const op = "reconcile hdfs policy"
	if err := validateFeed(op, p.Category, p.Feed); err != nil {
		return err
	}
	return validateGroups(op, p.Groups)
}

func validateFeed(op, category, feed string) error {
	if category == "" {
		return &Error{Kind: KindInvalidArgument, Op: op, Err: errEmpty("category")}
	}
	if feed == "" {
		return &Error{Kind: KindInvalidArgument, Op: op, Err: errEmpty("feed")}
	}
	if err := CheckIdentifier(category); err != nil {
		return &Error{Kind: KindInvalidArgument, Op: op, Err: fmt.Errorf("category: %w", err)}
	}
	if err := CheckIdentifier(feed); err != nil {
		return &Error{Kind: KindInvalidArgument, Op: op, Err: fmt.Errorf("feed: %w", err)}
	}
	return nil
}

func validateGroups(op string, groups []string) error {
	for _, g := range groups {
		if err := CheckIdentifier(g); err != nil {
			return &Error{Kind: KindInvalidArgument, Op: op, Err: fmt.Errorf("group: %w", err)}
		}
	}
	return nil
}

// CheckIdentifier reports whether name is usable as a role, group, database
// or table name. Names must be non-empty and free of whitespace, control
// characters, backticks, semicolons, commas and colons. Commas and colons
// would split HDFS ACL specs.
func CheckIdentifier(name string) error {
	if name == "" {
		return errEmpty("identifier")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("`;,:", r) {
			return fmt.Errorf("identifier %q contains an illegal character %q", name, r)
		}
	}
	return nil
}

// checkObjectName additionally rejects dots, which separate database and
// table in object names.
func checkObjectName(what, name string) error {
	if err := CheckIdentifier(name); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("%s %q must not contain a dot", what, name)
	}
	return nil
}
