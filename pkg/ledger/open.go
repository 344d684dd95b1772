package ledger

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database types accepted by Open.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// DefaultSQLiteDSN is used when a sqlite ledger has no DSN.
const DefaultSQLiteDSN = "file:authz-ledger.db?_pragma=busy_timeout(5000)"

// Config selects the ledger database.
type Config struct {
	Enabled       bool
	Type          string
	DSN           string
	RetentionDays int
}

// Dialector validates dsn for the database type and returns the matching
// gorm dialector.
func Dialector(typ, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", TypeSQLite:
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		return sqlite.Open(dsn), nil
	case TypePostgres, "postgresql":
		if dsn == "" {
			return nil, fmt.Errorf("postgres ledger requires a dsn")
		}
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if _, err := pq.ParseURL(dsn); err != nil {
				return nil, fmt.Errorf("invalid postgres dsn: %w", err)
			}
		}
		return postgres.Open(dsn), nil
	case TypeMySQL:
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		// Ledger timestamps are scanned into time.Time.
		cfg.ParseTime = true
		return mysql.Open(cfg.FormatDSN()), nil
	default:
		return nil, fmt.Errorf("unknown ledger database type %q (expected sqlite, postgres or mysql)", typ)
	}
}

// Open connects to the ledger database.
func Open(typ, dsn string) (*gorm.DB, error) {
	dialector, err := Dialector(typ, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return db, nil
}
