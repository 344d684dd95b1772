// Package ledger records which (category, feed) owns each provisioned policy
// name and keeps an append-only trail of reconcile attempts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

// Store is the gorm-backed policy ledger.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the ledger tables, holding the migration
// lock so that replicas starting together do not race.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return NewMigrationLocker(s.db).WithLock(ctx, func() error {
		if err := s.db.WithContext(ctx).AutoMigrate(&PolicyRecord{}, &EventRecord{}); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
		return nil
	})
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Claim records that name belongs to (category, feed). Claiming a name the
// pair already owns is a no-op; a name owned by another pair fails with
// authz.KindNameCollision.
func (s *Store) Claim(ctx context.Context, name, category, feed string) error {
	db := s.db.WithContext(ctx)
	rec := PolicyRecord{Name: name, Category: category, Feed: feed}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("claim policy %s: %w", name, err)
	}

	var owner PolicyRecord
	if err := db.Where("name = ?", name).First(&owner).Error; err != nil {
		return fmt.Errorf("claim policy %s: %w", name, err)
	}
	if owner.Category != category || owner.Feed != feed {
		return &authz.Error{
			Kind:   authz.KindNameCollision,
			Op:     "claim policy name",
			Policy: name,
			Err:    fmt.Errorf("already owned by category %q feed %q", owner.Category, owner.Feed),
		}
	}
	return nil
}

// Record appends an event for outcome and updates the policy row. The
// policy row is left alone when it belongs to a different (category, feed).
func (s *Store) Record(ctx context.Context, outcome authz.Outcome) error {
	event := &EventRecord{
		ID:         uuid.NewString(),
		PolicyName: outcome.PolicyName,
		Category:   outcome.Category,
		Feed:       outcome.Feed,
		Kind:       outcome.Kind,
		Action:     outcome.Action,
		Outcome:    OutcomeSuccess,
		Actor:      actor(ctx),
		Groups:     outcome.Groups,
		Objects:    outcome.Objects,
	}
	if outcome.Err != nil {
		event.Outcome = OutcomeFailure
		event.ErrorKind = string(authz.KindOf(outcome.Err))
		event.Reason = outcome.Err.Error()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("append ledger event: %w", err)
		}
		if event.ErrorKind == string(authz.KindNameCollision) {
			return nil
		}

		var rec PolicyRecord
		err := tx.Where("name = ?", outcome.PolicyName).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = PolicyRecord{Name: outcome.PolicyName, Category: outcome.Category, Feed: outcome.Feed}
		case err != nil:
			return fmt.Errorf("get ledger policy: %w", err)
		case rec.Category != outcome.Category || rec.Feed != outcome.Feed:
			return nil
		}
		rec.Kind = outcome.Kind
		rec.Groups = outcome.Groups
		rec.Objects = outcome.Objects
		rec.LastOutcome = event.Outcome
		rec.LastErrorKind = event.ErrorKind
		rec.LastError = event.Reason
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("save ledger policy: %w", err)
		}
		return nil
	})
}

// GetPolicy returns the policy row for name.
func (s *Store) GetPolicy(ctx context.Context, name string) (*PolicyRecord, error) {
	var rec PolicyRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &authz.Error{Kind: authz.KindNotFound, Op: "get policy", Policy: name}
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger policy: %w", err)
	}
	return &rec, nil
}

// GrantedGroups returns the union of the groups recorded for name by its
// owner, in first-recorded order. Events of failed reconciles count, as they
// may have granted some groups before failing. It fails with
// authz.KindNotFound when no reconcile of name was recorded.
func (s *Store) GrantedGroups(ctx context.Context, name string) ([]string, error) {
	db := s.db.WithContext(ctx)

	var rec PolicyRecord
	err := db.Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &authz.Error{Kind: authz.KindNotFound, Op: "granted groups", Policy: name}
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger policy: %w", err)
	}

	var events []EventRecord
	if err := db.Select("group_names", "created_at").
		Where("policy_name = ? AND category = ? AND feed = ?", name, rec.Category, rec.Feed).
		Order("created_at").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	if len(events) == 0 && rec.LastOutcome == "" {
		return nil, &authz.Error{Kind: authz.KindNotFound, Op: "granted groups", Policy: name}
	}

	groups := make([]string, 0, len(rec.Groups))
	seen := make(map[string]bool)
	add := func(gs []string) {
		for _, g := range gs {
			if !seen[g] {
				seen[g] = true
				groups = append(groups, g)
			}
		}
	}
	for _, e := range events {
		add(e.Groups)
	}
	add(rec.Groups)
	return groups, nil
}

// ListPolicies returns all policy rows ordered by name, optionally limited
// to one category.
func (s *Store) ListPolicies(ctx context.Context, category string) ([]PolicyRecord, error) {
	query := s.db.WithContext(ctx).Order("name")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var records []PolicyRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list ledger policies: %w", err)
	}
	return records, nil
}

// EventFilter narrows ListEvents. Empty fields match everything.
type EventFilter struct {
	PolicyName string
	Category   string
	Feed       string
	Outcome    string
}

func (f EventFilter) apply(db *gorm.DB) *gorm.DB {
	if f.PolicyName != "" {
		db = db.Where("policy_name = ?", f.PolicyName)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	if f.Feed != "" {
		db = db.Where("feed = ?", f.Feed)
	}
	if f.Outcome != "" {
		db = db.Where("outcome = ?", f.Outcome)
	}
	return db
}

// ListEvents returns paginated events ordered by created_at DESC.
// pageToken is an RFC3339 timestamp; events with created_at < pageToken are
// returned.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	db := s.db.WithContext(ctx)

	var totalSize int64
	if err := filter.apply(db.Model(&EventRecord{})).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count ledger events: %w", err)
	}

	query := filter.apply(db.Order("created_at DESC").Limit(pageSize + 1))
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, &authz.Error{Kind: authz.KindInvalidArgument, Op: "list events", Err: fmt.Errorf("invalid page token: %w", err)}
		}
		query = query.Where("created_at < ?", t)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list ledger events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan deletes events created before cutoff and returns how many
// were removed. Policy rows are kept.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old ledger events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func actor(ctx context.Context) string {
	if id, ok := authz.IdentityFromContext(ctx); ok && id.User != "" {
		return id.User
	}
	return "system"
}
