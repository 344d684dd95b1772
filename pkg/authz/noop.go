package authz

import "context"

// NoopService accepts every reconcile without touching any backend. Used when
// the server runs with backend "none".
type NoopService struct{}

// Type returns TypeNone.
func (NoopService) Type() Type { return TypeNone }

// ListGroups returns no groups.
func (NoopService) ListGroups(_ context.Context) ([]Group, error) {
	return []Group{}, nil
}

func (NoopService) GetGroupByName(_ context.Context, name string) (*Group, error) {
	return nil, &Error{Kind: KindNotFound, Op: "get group", Err: errUnknownGroup(name)}
}

// ReconcileHivePolicy validates the request and does nothing else.
func (NoopService) ReconcileHivePolicy(_ context.Context, policy HivePolicy) error {
	return policy.Validate()
}

// ReconcileHdfsPolicy validates the request and does nothing else.
func (NoopService) ReconcileHdfsPolicy(_ context.Context, policy HdfsPolicy) error {
	return policy.Validate()
}

func (NoopService) DeleteHivePolicy(_ context.Context, _, _ string) error { return nil }

func (NoopService) DeleteHdfsPolicy(_ context.Context, _, _ string) error { return nil }

func (NoopService) UpdateSecurityGroupsForAllPolicies(_ context.Context, _, _ string, _ []string, _ map[string]string) error {
	return nil
}
