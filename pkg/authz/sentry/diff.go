package sentry

import (
	"context"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/metrics"
)

// converge brings an existing role to the desired grants without dropping
// it. Missing grants are added first, in desired order; extra grants are
// revoked afterwards, in sorted order. Membership is inspected for the
// desired groups, the recorded groups and whatever the store can list.
func (s *Service) converge(ctx context.Context, m *mutations, groups, recorded, objects []string) error {
	inspector := s.store.(RoleInspector)

	candidates := mapset.NewThreadUnsafeSet(groups...)
	for _, g := range recorded {
		if authz.CheckIdentifier(g) == nil {
			candidates.Add(g)
		}
	}
	candidateList := candidates.ToSlice()
	sort.Strings(candidateList)

	currentGroups, err := inspector.RoleGroups(ctx, m.role, candidateList)
	metrics.ObserveStoreCall("list role groups", err)
	if err != nil {
		return &authz.Error{Kind: authz.KindStoreUnavailable, Op: "list role groups", Policy: m.role, Err: err}
	}
	currentPrivileges, err := inspector.RolePrivileges(ctx, m.role)
	metrics.ObserveStoreCall("list role privileges", err)
	if err != nil {
		return &authz.Error{Kind: authz.KindStoreUnavailable, Op: "list role privileges", Policy: m.role, Err: err}
	}

	wantGroups := mapset.NewThreadUnsafeSet(groups...)
	haveGroups := mapset.NewThreadUnsafeSet(currentGroups...)
	extraGroups := haveGroups.Difference(wantGroups).ToSlice()
	sort.Strings(extraGroups)

	for _, g := range groups {
		if haveGroups.Contains(g) {
			continue
		}
		if err := m.do(ctx, "grant role to group", func(ctx context.Context) error {
			return s.store.GrantRoleToGroup(ctx, m.role, g)
		}); err != nil {
			return err
		}
		haveGroups.Add(g)
	}

	wantPrivileges := mapset.NewThreadUnsafeSet[string]()
	havePrivileges := mapset.NewThreadUnsafeSet[string]()
	for _, p := range currentPrivileges {
		havePrivileges.Add(p.Key())
	}
	for _, obj := range objects {
		p := Privilege{Permission: HiveReadOnlyPermission, ObjectType: ObjectTypeTable, ObjectName: obj}
		wantPrivileges.Add(p.Key())
		if havePrivileges.Contains(p.Key()) {
			continue
		}
		if err := m.do(ctx, "grant privilege", func(ctx context.Context) error {
			return s.store.GrantPrivilege(ctx, p.Permission, p.ObjectType, p.ObjectName, m.role)
		}); err != nil {
			return err
		}
		havePrivileges.Add(p.Key())
	}

	for _, g := range extraGroups {
		if err := m.do(ctx, "revoke role from group", func(ctx context.Context) error {
			return inspector.RevokeRoleFromGroup(ctx, m.role, g)
		}); err != nil {
			return err
		}
	}

	extraPrivileges := make([]Privilege, 0, len(currentPrivileges))
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, p := range currentPrivileges {
		if wantPrivileges.Contains(p.Key()) || !seen.Add(p.Key()) {
			continue
		}
		extraPrivileges = append(extraPrivileges, p)
	}
	sort.Slice(extraPrivileges, func(i, j int) bool { return extraPrivileges[i].Key() < extraPrivileges[j].Key() })
	for _, p := range extraPrivileges {
		if err := m.do(ctx, "revoke privilege", func(ctx context.Context) error {
			return inspector.RevokePrivilege(ctx, p.Permission, p.ObjectType, p.ObjectName, m.role)
		}); err != nil {
			return err
		}
	}

	s.logger.Info("converged hive policy", "policy", m.role,
		"granted", m.applied-len(extraGroups)-len(extraPrivileges),
		"revokedGroups", len(extraGroups), "revokedPrivileges", len(extraPrivileges))
	return nil
}
