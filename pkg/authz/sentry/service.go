// Package sentry provisions read-only feed policies in Apache Sentry. Hive
// tables are protected by a role per feed; HDFS paths by ACL entries.
package sentry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/hadoop"
	"github.com/kylo-io/hadoop-authz/pkg/metrics"
)

// Read-only permissions granted by this backend.
const (
	HiveReadOnlyPermission = "select"
	HdfsReadOnlyPermission = "read,execute"
	ObjectTypeTable        = "table"
)

var tracer = otel.Tracer("sentry")

// UpdateStrategy selects how an existing role is converged.
type UpdateStrategy string

const (
	// StrategyReplace drops the role and recreates it with the desired
	// grants. The role does not exist between the drop and the create.
	StrategyReplace UpdateStrategy = "replace"
	// StrategyDiff grants what is missing and revokes what is extra. The
	// role is never absent; members briefly hold the union of old and new
	// grants.
	StrategyDiff UpdateStrategy = "diff"
)

// ParseUpdateStrategy maps a configured name to an UpdateStrategy. An empty
// string selects StrategyReplace.
func ParseUpdateStrategy(s string) (UpdateStrategy, error) {
	switch UpdateStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyReplace:
		return StrategyReplace, nil
	case StrategyDiff:
		return StrategyDiff, nil
	default:
		return "", fmt.Errorf("unknown update strategy %q (expected replace or diff)", s)
	}
}

// Ledger keeps track of provisioned policies.
type Ledger interface {
	// Claim records that policyName belongs to (category, feed). It returns
	// an error of kind authz.KindNameCollision if the name is already owned by
	// a different pair.
	Claim(ctx context.Context, policyName, category, feed string) error
	// Record stores the outcome of one reconcile.
	Record(ctx context.Context, outcome authz.Outcome) error
	// GrantedGroups returns every group recorded for policyName by earlier
	// reconciles. It returns an error of kind authz.KindNotFound when no
	// reconcile of the policy was recorded.
	GrantedGroups(ctx context.Context, policyName string) ([]string, error)
}

// Service is the Sentry implementation of authz.Service.
type Service struct {
	store      PolicyStore
	hadoopConf *hadoop.Configuration
	strategy   UpdateStrategy
	ledger     Ledger
	logger     *slog.Logger
}

var _ authz.Service = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithHadoopConfiguration sets the configuration handed to every ACL call.
func WithHadoopConfiguration(conf *hadoop.Configuration) Option {
	return func(s *Service) { s.hadoopConf = conf }
}

// WithUpdateStrategy selects how existing roles are converged.
func WithUpdateStrategy(strategy UpdateStrategy) Option {
	return func(s *Service) { s.strategy = strategy }
}

// WithLedger records every reconcile and enables name collision checks.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service driving store. StrategyDiff falls back to
// StrategyReplace when store does not implement RoleInspector or no ledger
// is configured: Sentry cannot list the groups holding a role, so the diff
// strategy needs the ledger's record of earlier grants.
func New(store PolicyStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		strategy: StrategyReplace,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.strategy == StrategyDiff {
		if _, ok := store.(RoleInspector); !ok {
			s.logger.Warn("policy store cannot inspect role grants, using replace strategy")
			s.strategy = StrategyReplace
		} else if s.ledger == nil {
			s.logger.Warn("diff strategy requires the policy ledger, using replace strategy")
			s.strategy = StrategyReplace
		}
	}
	return s
}

// Type returns authz.TypeSentry.
func (s *Service) Type() authz.Type { return authz.TypeSentry }

// Strategy returns the update strategy in effect.
func (s *Service) Strategy() UpdateStrategy { return s.strategy }

// ListGroups returns the groups known to Sentry.
func (s *Service) ListGroups(ctx context.Context) ([]authz.Group, error) {
	ctx, span := tracer.Start(ctx, "Sentry.Service.ListGroups")
	defer span.End()

	groups, err := s.store.ListGroups(ctx)
	metrics.ObserveStoreCall("list groups", err)
	if err != nil {
		span.RecordError(err)
		return nil, &authz.Error{Kind: authz.KindStoreUnavailable, Op: "list groups", Err: err}
	}
	return groups, nil
}

// GetGroupByName looks name up in the group inventory.
func (s *Service) GetGroupByName(ctx context.Context, name string) (*authz.Group, error) {
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	return authz.FindGroup(groups, name)
}

// ReconcileHivePolicy makes the feed's role grant exactly policy.Groups
// membership and select on exactly policy.Tables. The role is created if it
// does not exist; otherwise it is converged with the configured strategy.
//
// A failing store call aborts the reconcile. Mutations applied before the
// failure are not rolled back; the error is then of kind
// authz.KindPartialApply and running the same reconcile again converges.
func (s *Service) ReconcileHivePolicy(ctx context.Context, policy authz.HivePolicy) (err error) {
	ctx, span := tracer.Start(ctx, "Sentry.Service.ReconcileHivePolicy")
	defer span.End()

	if err := policy.Validate(); err != nil {
		return err
	}

	role := authz.HivePolicyName(policy.Category, policy.Feed)
	objects := TableObjects(policy.Database, policy.Tables)
	span.SetAttributes(attribute.String("policy", role), attribute.String("strategy", string(s.strategy)))

	action := authz.ActionCreate
	start := time.Now()
	defer func() {
		metrics.ObserveReconcile(authz.TypeSentry, authz.RepositoryHive, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("hive policy reconcile failed", "policy", role, "action", action, "error", err)
		}
		s.record(ctx, authz.Outcome{
			PolicyName: role,
			Category:   policy.Category,
			Feed:       policy.Feed,
			Kind:       authz.RepositoryHive,
			Action:     action,
			Groups:     policy.Groups,
			Objects:    objects,
			Err:        err,
		})
	}()

	if err := s.claim(ctx, role, policy.Category, policy.Feed); err != nil {
		return err
	}

	exists, err := s.store.RoleExists(ctx, role)
	metrics.ObserveStoreCall("check role exists", err)
	if err != nil {
		return &authz.Error{Kind: authz.KindStoreUnavailable, Op: "check role exists", Policy: role, Err: err}
	}

	m := &mutations{role: role}
	if !exists {
		s.logger.Info("creating hive policy", "policy", role, "groups", len(policy.Groups), "tables", len(objects))
		return s.grantAll(ctx, m, policy.Groups, objects)
	}

	action = authz.ActionUpdate
	if s.strategy == StrategyDiff {
		if recorded, ok := s.grantedGroups(ctx, role); ok {
			s.logger.Info("updating hive policy", "policy", role, "strategy", s.strategy)
			return s.converge(ctx, m, policy.Groups, recorded, objects)
		}
	}

	s.logger.Info("replacing hive policy", "policy", role, "groups", len(policy.Groups), "tables", len(objects))
	if err := m.do(ctx, "drop role", func(ctx context.Context) error {
		return s.store.DropRole(ctx, role)
	}); err != nil {
		return err
	}
	return s.grantAll(ctx, m, policy.Groups, objects)
}

// grantAll creates the role, then grants it to every group and grants select
// on every object, in order.
func (s *Service) grantAll(ctx context.Context, m *mutations, groups, objects []string) error {
	if err := m.do(ctx, "create role", func(ctx context.Context) error {
		return s.store.CreateRole(ctx, m.role)
	}); err != nil {
		return err
	}
	for _, g := range groups {
		if err := m.do(ctx, "grant role to group", func(ctx context.Context) error {
			return s.store.GrantRoleToGroup(ctx, m.role, g)
		}); err != nil {
			return err
		}
	}
	for _, obj := range objects {
		if err := m.do(ctx, "grant privilege", func(ctx context.Context) error {
			return s.store.GrantPrivilege(ctx, HiveReadOnlyPermission, ObjectTypeTable, obj, m.role)
		}); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileHdfsPolicy grants read and execute on policy.Paths to
// policy.Groups with a single ACL call. There is no role and no existence
// check; the ACL call overwrites matching entries.
func (s *Service) ReconcileHdfsPolicy(ctx context.Context, policy authz.HdfsPolicy) (err error) {
	ctx, span := tracer.Start(ctx, "Sentry.Service.ReconcileHdfsPolicy")
	defer span.End()

	if err := policy.Validate(); err != nil {
		return err
	}

	name := authz.PolicyName(policy.Category, policy.Feed, authz.RepositoryHdfs)
	groups := authz.Join(policy.Groups, ",")
	paths := authz.Join(policy.Paths, ",")
	span.SetAttributes(attribute.String("policy", name), attribute.String("paths", paths))

	start := time.Now()
	defer func() {
		metrics.ObserveReconcile(authz.TypeSentry, authz.RepositoryHdfs, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("hdfs policy reconcile failed", "policy", name, "error", err)
		}
		s.record(ctx, authz.Outcome{
			PolicyName: name,
			Category:   policy.Category,
			Feed:       policy.Feed,
			Kind:       authz.RepositoryHdfs,
			Action:     authz.ActionACL,
			Groups:     policy.Groups,
			Objects:    policy.Paths,
			Err:        err,
		})
	}()

	err = s.store.SetACL(ctx, s.hadoopConf, groups, paths, HdfsReadOnlyPermission)
	metrics.ObserveStoreCall("set acl", err)
	if err != nil {
		kind := authz.KindStoreRejected
		if errors.Is(err, authz.ErrStoreUnavailable) {
			kind = authz.KindStoreUnavailable
		}
		return &authz.Error{Kind: kind, Op: "set hdfs acl", Policy: name, Err: err}
	}

	s.logger.Info("applied hdfs policy", "policy", name, "groups", groups, "paths", paths)
	return nil
}

// DeleteHivePolicy is not implemented for Sentry.
func (s *Service) DeleteHivePolicy(_ context.Context, _, _ string) error {
	return authz.NotSupported(authz.TypeSentry, "delete hive policy")
}

// DeleteHdfsPolicy is not implemented for Sentry.
func (s *Service) DeleteHdfsPolicy(_ context.Context, _, _ string) error {
	return authz.NotSupported(authz.TypeSentry, "delete hdfs policy")
}

// UpdateSecurityGroupsForAllPolicies is not implemented for Sentry.
func (s *Service) UpdateSecurityGroupsForAllPolicies(_ context.Context, _, _ string, _ []string, _ map[string]string) error {
	return authz.NotSupported(authz.TypeSentry, "update security groups for all policies")
}

// TableObjects returns the access object name of every table in database.
func TableObjects(database string, tables []string) []string {
	objects := make([]string, 0, len(tables))
	for _, t := range tables {
		objects = append(objects, database+"."+t)
	}
	return objects
}

// claim fails only on a name collision. Other ledger errors are logged so
// that bookkeeping problems do not block provisioning.
func (s *Service) claim(ctx context.Context, role, category, feed string) error {
	if s.ledger == nil {
		return nil
	}
	err := s.ledger.Claim(ctx, role, category, feed)
	if err == nil {
		return nil
	}
	if errors.Is(err, authz.ErrNameCollision) {
		return err
	}
	s.logger.Warn("policy ledger claim failed, skipping collision check", "policy", role, "error", err)
	return nil
}

// grantedGroups returns the groups earlier reconciles granted role to. ok is
// false when the ledger has no usable history; the role is then replaced.
func (s *Service) grantedGroups(ctx context.Context, role string) ([]string, bool) {
	groups, err := s.ledger.GrantedGroups(ctx, role)
	if err != nil {
		s.logger.Warn("no grant history for policy, replacing role", "policy", role, "error", err)
		return nil, false
	}
	return groups, true
}

func (s *Service) record(ctx context.Context, outcome authz.Outcome) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Record(ctx, outcome); err != nil {
		s.logger.Warn("failed to record policy outcome", "policy", outcome.PolicyName, "error", err)
	}
}

// mutations counts the store mutations of one reconcile so that a failure
// can be classified as rejected (nothing applied) or partial.
type mutations struct {
	role    string
	applied int
}

func (m *mutations) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "Sentry.PolicyStore."+strings.ReplaceAll(op, " ", "_"))
	defer span.End()

	err := fn(ctx)
	metrics.ObserveStoreCall(op, err)
	if err != nil {
		span.RecordError(err)
		return m.fail(op, err)
	}
	m.applied++
	return nil
}

// fail classifies err. Invalid input keeps its kind however many mutations
// were applied.
func (m *mutations) fail(op string, err error) error {
	kind := authz.KindPartialApply
	switch {
	case errors.Is(err, authz.ErrInvalidArgument):
		kind = authz.KindInvalidArgument
	case m.applied == 0:
		kind = authz.KindStoreRejected
		if errors.Is(err, authz.ErrStoreUnavailable) {
			kind = authz.KindStoreUnavailable
		}
	}
	return &authz.Error{Kind: kind, Op: op, Policy: m.role, Applied: m.applied, Err: err}
}
