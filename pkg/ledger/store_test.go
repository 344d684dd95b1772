package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := NewStore(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func TestClaim(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Claim(ctx, "kylo_a_b_c_hive", "a_b", "c"))
	require.NoError(t, s.Claim(ctx, "kylo_a_b_c_hive", "a_b", "c"), "reclaim by the owner")

	err := s.Claim(ctx, "kylo_a_b_c_hive", "a", "b_c")
	require.Error(t, err)
	assert.ErrorIs(t, err, authz.ErrNameCollision)
	assert.Contains(t, err.Error(), `category "a_b"`)

	rec, err := s.GetPolicy(ctx, "kylo_a_b_c_hive")
	require.NoError(t, err)
	assert.Equal(t, "a_b", rec.Category)
	assert.Equal(t, "c", rec.Feed)
}

func TestRecord_Success(t *testing.T) {
	s := setupTestStore(t)
	ctx := authz.WithIdentity(context.Background(), authz.Identity{User: "alice"})

	require.NoError(t, s.Claim(ctx, "kylo_ingest_orders_hive", "ingest", "orders"))
	require.NoError(t, s.Record(ctx, authz.Outcome{
		PolicyName: "kylo_ingest_orders_hive",
		Category:   "ingest",
		Feed:       "orders",
		Kind:       authz.RepositoryHive,
		Action:     authz.ActionCreate,
		Groups:     []string{"analysts"},
		Objects:    []string{"sales.orders"},
	}))

	rec, err := s.GetPolicy(ctx, "kylo_ingest_orders_hive")
	require.NoError(t, err)
	assert.Equal(t, "hive", rec.Kind)
	assert.Equal(t, JSONStringSlice{"analysts"}, rec.Groups)
	assert.Equal(t, JSONStringSlice{"sales.orders"}, rec.Objects)
	assert.Equal(t, OutcomeSuccess, rec.LastOutcome)

	events, next, total, err := s.ListEvents(ctx, EventFilter{}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.Equal(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Actor)
	assert.Equal(t, authz.ActionCreate, events[0].Action)
	assert.Len(t, events[0].ID, 36)
}

func TestRecord_Failure(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cause := &authz.Error{Kind: authz.KindPartialApply, Op: "grant privilege", Policy: "kylo_c_f_hive", Applied: 2, Err: errors.New("boom")}
	require.NoError(t, s.Record(ctx, authz.Outcome{
		PolicyName: "kylo_c_f_hive", Category: "c", Feed: "f",
		Kind: authz.RepositoryHive, Action: authz.ActionUpdate, Err: cause,
	}))

	rec, err := s.GetPolicy(ctx, "kylo_c_f_hive")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, rec.LastOutcome)
	assert.Equal(t, "partial-apply", rec.LastErrorKind)
	assert.Contains(t, rec.LastError, "boom")

	events, _, _, err := s.ListEvents(ctx, EventFilter{Outcome: OutcomeFailure}, 10, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "system", events[0].Actor)
	assert.Equal(t, "partial-apply", events[0].ErrorKind)
}

func TestRecord_CollisionLeavesOwnerRow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Claim(ctx, "kylo_a_b_c_hive", "a_b", "c"))
	collision := s.Claim(ctx, "kylo_a_b_c_hive", "a", "b_c")
	require.NoError(t, s.Record(ctx, authz.Outcome{
		PolicyName: "kylo_a_b_c_hive", Category: "a", Feed: "b_c",
		Kind: authz.RepositoryHive, Action: authz.ActionCreate, Groups: []string{"intruders"}, Err: collision,
	}))

	rec, err := s.GetPolicy(ctx, "kylo_a_b_c_hive")
	require.NoError(t, err)
	assert.Equal(t, "a_b", rec.Category)
	assert.Empty(t, rec.Groups)

	events, _, total, err := s.ListEvents(ctx, EventFilter{PolicyName: "kylo_a_b_c_hive"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "name-collision", events[0].ErrorKind)
}

func TestGrantedGroups(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	name := "kylo_a_b_c_hive"

	_, err := s.GrantedGroups(ctx, name)
	assert.ErrorIs(t, err, authz.ErrNotFound)

	require.NoError(t, s.Claim(ctx, name, "a_b", "c"))
	_, err = s.GrantedGroups(ctx, name)
	assert.ErrorIs(t, err, authz.ErrNotFound, "a claim alone is no grant history")

	outcome := authz.Outcome{PolicyName: name, Category: "a_b", Feed: "c", Kind: authz.RepositoryHive, Action: authz.ActionCreate}
	outcome.Groups = []string{"g1", "g2"}
	require.NoError(t, s.Record(ctx, outcome))
	outcome.Groups = []string{"g4"}
	outcome.Err = &authz.Error{Kind: authz.KindPartialApply, Err: errors.New("boom")}
	require.NoError(t, s.Record(ctx, outcome))
	outcome.Groups = []string{"g2", "g3"}
	outcome.Err = nil
	require.NoError(t, s.Record(ctx, outcome))

	// Groups of the colliding pair were never granted.
	require.NoError(t, s.Record(ctx, authz.Outcome{
		PolicyName: name, Category: "a", Feed: "b_c", Groups: []string{"intruders"},
		Err: &authz.Error{Kind: authz.KindNameCollision},
	}))

	groups, err := s.GrantedGroups(ctx, name)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g1", "g2", "g3", "g4"}, groups)
}

func TestGetPolicy_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetPolicy(context.Background(), "missing")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestListPolicies(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, o := range []authz.Outcome{
		{PolicyName: "kylo_b_x_hive", Category: "b", Feed: "x", Kind: "hive", Action: "create"},
		{PolicyName: "kylo_a_y_hdfs", Category: "a", Feed: "y", Kind: "hdfs", Action: "acl"},
		{PolicyName: "kylo_a_x_hive", Category: "a", Feed: "x", Kind: "hive", Action: "create"},
	} {
		require.NoError(t, s.Record(ctx, o))
	}

	all, err := s.ListPolicies(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "kylo_a_x_hive", all[0].Name)

	a, err := s.ListPolicies(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, a, 2)
}

func TestListEvents_Pagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.db.Create(&EventRecord{
			ID: string(rune('a'+i)) + "-event", PolicyName: "p", Category: "c", Feed: "f",
			Kind: "hive", Action: "update", Outcome: OutcomeSuccess, Actor: "system",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	page1, token, total, err := s.ListEvents(ctx, EventFilter{}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "e-event", page1[0].ID)
	require.NotEmpty(t, token)

	page2, token, _, err := s.ListEvents(ctx, EventFilter{}, 2, token)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "c-event", page2[0].ID)

	page3, token, _, err := s.ListEvents(ctx, EventFilter{}, 2, token)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Empty(t, token)

	_, _, _, err = s.ListEvents(ctx, EventFilter{}, 2, "not-a-time")
	assert.ErrorIs(t, err, authz.ErrInvalidArgument)
}

func TestDeleteOlderThan(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.db.Create(&EventRecord{ID: "old", PolicyName: "p", Category: "c", Feed: "f", Kind: "hive",
		Action: "create", Outcome: OutcomeSuccess, CreatedAt: time.Now().Add(-48 * time.Hour)}).Error)
	require.NoError(t, s.Record(ctx, authz.Outcome{PolicyName: "p", Category: "c", Feed: "f", Kind: "hive", Action: "update"}))

	deleted, err := s.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, _, total, err := s.ListEvents(ctx, EventFilter{}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, err = s.GetPolicy(ctx, "p")
	assert.NoError(t, err, "policy rows survive retention")
}

func TestRetentionWorker_Disabled(t *testing.T) {
	w := NewRetentionWorker(nil, 30, nil)
	assert.Equal(t, 30*24*time.Hour, w.retention)
	assert.Equal(t, 24*time.Hour, w.interval)

	done := make(chan struct{})
	go func() {
		NewRetentionWorker(nil, 0, nil).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker did not return")
	}
}

func TestRetentionWorker_Cleanup(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.db.Create(&EventRecord{ID: "old", PolicyName: "p", Category: "c", Feed: "f", Kind: "hive",
		Action: "create", Outcome: OutcomeSuccess, CreatedAt: time.Now().Add(-72 * time.Hour)}).Error)

	w := NewRetentionWorker(s, 1, nil)
	w.cleanup(context.Background())

	_, _, total, err := s.ListEvents(context.Background(), EventFilter{}, 10, "")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRetentionWorker_StopsOnCancel(t *testing.T) {
	s := setupTestStore(t)
	w := NewRetentionWorker(s, 1, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
