package ledger

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker serializes schema migrations across server replicas that
// share one ledger database.
type MigrationLocker interface {
	// WithLock runs fn while holding the lock.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker returns an advisory lock on PostgreSQL and a lock row on
// other databases. A nil db yields a locker that only runs fn.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return noopMigrationLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte("authz-ledger-migration"))),
		}
	}
	// The lock table must exist before the first WithLock call.
	_ = db.AutoMigrate(&migrationLockRecord{})
	return &rowMigrationLock{
		db:            db,
		retries:       30,
		retryInterval: time.Second,
		staleAfter:    5 * time.Minute,
	}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID)
	return fn()
}

type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "authz_migration_lock" }

// rowMigrationLock holds the lock while its row exists. Rows older than
// staleAfter are removed so a crashed holder does not block forever.
type rowMigrationLock struct {
	db            *gorm.DB
	retries       int
	retryInterval time.Duration
	staleAfter    time.Duration
}

const migrationLockID = "ledger"

func (l *rowMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}
	db := l.db.WithContext(ctx)

	var lastErr error
	for attempt := 0; ; attempt++ {
		db.Where("id = ? AND locked_at < ?", migrationLockID, time.Now().Add(-l.staleAfter)).Delete(&migrationLockRecord{})

		row := migrationLockRecord{ID: migrationLockID, LockedBy: holder, LockedAt: time.Now()}
		lastErr = db.Create(&row).Error
		if lastErr == nil {
			break
		}
		if attempt+1 >= l.retries {
			return fmt.Errorf("acquire migration lock after %d attempts: %w", l.retries, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	defer l.db.Where("id = ?", migrationLockID).Delete(&migrationLockRecord{})

	return fn()
}
