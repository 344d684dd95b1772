package sentry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/hadoop"
)

// call is one recorded store invocation.
type call struct {
	op   string
	args []string
}

func (c call) String() string {
	return c.op + "(" + strings.Join(c.args, ", ") + ")"
}

type fakeRole struct {
	groups     []string
	privileges []Privilege
}

type aclCall struct {
	conf       *hadoop.Configuration
	groups     string
	paths      string
	permission string
}

// fakeStore is an in-memory Sentry. It records every call and can fail the
// n-th invocation of one operation. Role names are case-insensitive and, as
// in Sentry, role membership is only visible per group.
type fakeStore struct {
	mu     sync.Mutex
	roles  map[string]*fakeRole
	groups []string
	calls  []call
	acls   []aclCall

	failOp  string
	failNth int // 1-based; 0 means the first call
	failErr error
	seen    map[string]int
}

func newFakeStore(groups ...string) *fakeStore {
	return &fakeStore{roles: map[string]*fakeRole{}, groups: groups, seen: map[string]int{}}
}

func roleKey(role string) string {
	return strings.ToLower(role)
}

func (f *fakeStore) failOn(op string, nth int, err error) {
	f.failOp, f.failNth, f.failErr = op, nth, err
}

func (f *fakeStore) record(op string, args ...string) error {
	f.calls = append(f.calls, call{op: op, args: args})
	f.seen[op]++
	if op == f.failOp {
		nth := f.failNth
		if nth == 0 {
			nth = 1
		}
		if f.seen[op] == nth {
			return f.failErr
		}
	}
	return nil
}

func (f *fakeStore) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

func (f *fakeStore) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.acls = nil
	f.seen = map[string]int{}
}

// state returns the sorted group memberships and privilege keys of role, and
// whether the role exists.
func (f *fakeStore) state(role string) ([]string, []string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[roleKey(role)]
	if !ok {
		return nil, nil, false
	}
	groups := append([]string(nil), r.groups...)
	sort.Strings(groups)
	privs := make([]string, 0, len(r.privileges))
	for _, p := range r.privileges {
		privs = append(privs, p.Key())
	}
	sort.Strings(privs)
	return groups, privs, true
}

func (f *fakeStore) RoleExists(_ context.Context, role string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RoleExists", role); err != nil {
		return false, err
	}
	_, ok := f.roles[roleKey(role)]
	return ok, nil
}

func (f *fakeStore) CreateRole(_ context.Context, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRole", role); err != nil {
		return err
	}
	if _, ok := f.roles[roleKey(role)]; ok {
		return errors.New("role already exists: " + role)
	}
	f.roles[roleKey(role)] = &fakeRole{}
	return nil
}

func (f *fakeStore) DropRole(_ context.Context, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DropRole", role); err != nil {
		return err
	}
	if _, ok := f.roles[roleKey(role)]; !ok {
		return errors.New("role does not exist: " + role)
	}
	delete(f.roles, roleKey(role))
	return nil
}

func (f *fakeStore) GrantRoleToGroup(_ context.Context, role, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GrantRoleToGroup", role, group); err != nil {
		return err
	}
	r, ok := f.roles[roleKey(role)]
	if !ok {
		return errors.New("role does not exist: " + role)
	}
	for _, g := range r.groups {
		if g == group {
			return nil
		}
	}
	r.groups = append(r.groups, group)
	return nil
}

func (f *fakeStore) GrantPrivilege(_ context.Context, permission, objectType, objectName, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GrantPrivilege", permission, objectType, objectName, role); err != nil {
		return err
	}
	r, ok := f.roles[roleKey(role)]
	if !ok {
		return errors.New("role does not exist: " + role)
	}
	p := Privilege{Permission: permission, ObjectType: objectType, ObjectName: objectName}
	for _, existing := range r.privileges {
		if existing.Key() == p.Key() {
			return nil
		}
	}
	r.privileges = append(r.privileges, p)
	return nil
}

func (f *fakeStore) SetACL(_ context.Context, conf *hadoop.Configuration, groups, paths, permission string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetACL", groups, paths, permission); err != nil {
		return err
	}
	f.acls = append(f.acls, aclCall{conf: conf, groups: groups, paths: paths, permission: permission})
	return nil
}

func (f *fakeStore) ListGroups(_ context.Context) ([]authz.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListGroups"); err != nil {
		return nil, err
	}
	return authz.GroupsFromNames(f.groups), nil
}

// RoleGroups only reports members among candidates and the inventory.
func (f *fakeStore) RoleGroups(_ context.Context, role string, candidates []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RoleGroups", role); err != nil {
		return nil, err
	}
	r, ok := f.roles[roleKey(role)]
	if !ok {
		return nil, nil
	}
	visible := map[string]bool{}
	for _, g := range append(append([]string(nil), f.groups...), candidates...) {
		visible[g] = true
	}
	var out []string
	for _, g := range r.groups {
		if visible[g] {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) RolePrivileges(_ context.Context, role string) ([]Privilege, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RolePrivileges", role); err != nil {
		return nil, err
	}
	r, ok := f.roles[roleKey(role)]
	if !ok {
		return nil, nil
	}
	return append([]Privilege(nil), r.privileges...), nil
}

func (f *fakeStore) RevokeRoleFromGroup(_ context.Context, role, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RevokeRoleFromGroup", role, group); err != nil {
		return err
	}
	r := f.roles[roleKey(role)]
	for i, g := range r.groups {
		if g == group {
			r.groups = append(r.groups[:i], r.groups[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) RevokePrivilege(_ context.Context, permission, objectType, objectName, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RevokePrivilege", permission, objectType, objectName, role); err != nil {
		return err
	}
	r := f.roles[roleKey(role)]
	key := Privilege{Permission: permission, ObjectType: objectType, ObjectName: objectName}.Key()
	for i, p := range r.privileges {
		if p.Key() == key {
			r.privileges = append(r.privileges[:i], r.privileges[i+1:]...)
			break
		}
	}
	return nil
}

// basicStore hides the RoleInspector methods of the wrapped store.
type basicStore struct {
	PolicyStore
}

// fakeLedger records claims and outcomes in memory.
type fakeLedger struct {
	owners   map[string]string
	outcomes []authz.Outcome
	claimErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{owners: map[string]string{}}
}

func (l *fakeLedger) Claim(_ context.Context, policyName, category, feed string) error {
	if l.claimErr != nil {
		return l.claimErr
	}
	owner := category + "/" + feed
	if existing, ok := l.owners[policyName]; ok && existing != owner {
		return &authz.Error{Kind: authz.KindNameCollision, Op: "claim policy name", Policy: policyName,
			Err: errors.New("owned by " + existing)}
	}
	l.owners[policyName] = owner
	return nil
}

func (l *fakeLedger) Record(_ context.Context, outcome authz.Outcome) error {
	l.outcomes = append(l.outcomes, outcome)
	return nil
}

func (l *fakeLedger) GrantedGroups(_ context.Context, policyName string) ([]string, error) {
	var groups []string
	found := false
	for _, o := range l.outcomes {
		if o.PolicyName != policyName || errors.Is(o.Err, authz.ErrNameCollision) {
			continue
		}
		found = true
		groups = append(groups, o.Groups...)
	}
	if !found {
		return nil, &authz.Error{Kind: authz.KindNotFound, Op: "granted groups", Policy: policyName}
	}
	return groups, nil
}
