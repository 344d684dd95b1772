// Package sentryclient talks to Apache Sentry through HiveServer2 SQL
// statements and to HDFS through WebHDFS.
package sentryclient

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/authz/sentry"
	"github.com/kylo-io/hadoop-authz/pkg/hadoop"
)

// DefaultDriverName is the database/sql driver used when Config.DriverName
// is empty. A HiveServer2 driver registering this name must be linked into
// the binary.
const DefaultDriverName = "hive"

// Config describes how to reach Sentry.
type Config struct {
	DriverName string
	DataSource string
	// Groups is the group inventory reported by ListGroups. Sentry has no
	// statement listing every group.
	Groups []string
	// ACLOptions are applied to every WebHDFS client built by SetACL.
	ACLOptions []hadoop.ACLOption
}

// Client implements sentry.PolicyStore and sentry.RoleInspector.
type Client struct {
	db         *sql.DB
	groups     []string
	aclOptions []hadoop.ACLOption
	logger     *slog.Logger
}

var (
	_ sentry.PolicyStore   = (*Client)(nil)
	_ sentry.RoleInspector = (*Client)(nil)
)

// Open connects to Sentry and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.DataSource == "" {
		return nil, errors.New("sentry data source must not be empty")
	}
	driverName := cfg.DriverName
	if driverName == "" {
		driverName = DefaultDriverName
	}
	db, err := sql.Open(driverName, cfg.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open sentry connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sentry: %w", classify(err))
	}
	return New(db, cfg, logger), nil
}

// New wraps an open database handle.
func New(db *sql.DB, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		db:         db,
		groups:     cfg.Groups,
		aclOptions: cfg.ACLOptions,
		logger:     logger,
	}
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping verifies that Sentry is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return classify(c.db.PingContext(ctx))
}

// RoleExists reports whether role is defined. Sentry role names are case
// insensitive.
func (c *Client) RoleExists(ctx context.Context, role string) (bool, error) {
	roles, err := c.queryColumn(ctx, "SHOW ROLES", "role")
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) CreateRole(ctx context.Context, role string) error {
	r, err := quoteIdent(role)
	if err != nil {
		return err
	}
	return c.exec(ctx, "CREATE ROLE "+r)
}

func (c *Client) DropRole(ctx context.Context, role string) error {
	r, err := quoteIdent(role)
	if err != nil {
		return err
	}
	return c.exec(ctx, "DROP ROLE "+r)
}

func (c *Client) GrantRoleToGroup(ctx context.Context, role, group string) error {
	stmt, err := roleGroupStatement("GRANT ROLE %s TO GROUP %s", role, group)
	if err != nil {
		return err
	}
	return c.exec(ctx, stmt)
}

func (c *Client) RevokeRoleFromGroup(ctx context.Context, role, group string) error {
	stmt, err := roleGroupStatement("REVOKE ROLE %s FROM GROUP %s", role, group)
	if err != nil {
		return err
	}
	return c.exec(ctx, stmt)
}

// GrantPrivilege grants permission on the object to role. objectName is
// "database" for database objects and "database.table" for tables.
func (c *Client) GrantPrivilege(ctx context.Context, permission, objectType, objectName, role string) error {
	stmt, err := privilegeStatement("GRANT %s ON %s %s TO ROLE %s", permission, objectType, objectName, role)
	if err != nil {
		return err
	}
	return c.exec(ctx, stmt)
}

func (c *Client) RevokePrivilege(ctx context.Context, permission, objectType, objectName, role string) error {
	stmt, err := privilegeStatement("REVOKE %s ON %s %s FROM ROLE %s", permission, objectType, objectName, role)
	if err != nil {
		return err
	}
	return c.exec(ctx, stmt)
}

// RoleGroups returns the groups holding role among candidates and the
// configured inventory. Sentry only lists grants per group, so a group that
// is in neither list is not seen.
func (c *Client) RoleGroups(ctx context.Context, role string, candidates []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool, len(c.groups)+len(candidates))
	for _, g := range append(append([]string(nil), c.groups...), candidates...) {
		if seen[g] || strings.TrimSpace(g) == "" {
			continue
		}
		seen[g] = true

		q, err := quoteIdent(g)
		if err != nil {
			return nil, err
		}
		roles, err := c.queryColumn(ctx, "SHOW ROLE GRANT GROUP "+q, "role")
		if err != nil {
			return nil, err
		}
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

// RolePrivileges returns the privileges granted to role.
func (c *Client) RolePrivileges(ctx context.Context, role string) ([]sentry.Privilege, error) {
	r, err := quoteIdent(role)
	if err != nil {
		return nil, err
	}
	rows, err := c.query(ctx, "SHOW GRANT ROLE "+r, "database", "table", "privilege")
	if err != nil {
		return nil, err
	}
	privileges := make([]sentry.Privilege, 0, len(rows))
	for _, row := range rows {
		db, table, perm := row[0], row[1], row[2]
		p := sentry.Privilege{Permission: strings.ToLower(perm), ObjectType: "database", ObjectName: db}
		if table != "" {
			p.ObjectType = sentry.ObjectTypeTable
			p.ObjectName = db + "." + table
		}
		privileges = append(privileges, p)
	}
	return privileges, nil
}

// SetACL applies permission for groups on paths through WebHDFS, using the
// namenode described by conf.
func (c *Client) SetACL(ctx context.Context, conf *hadoop.Configuration, groups, paths, permission string) error {
	opts := append([]hadoop.ACLOption{hadoop.WithLogger(c.logger)}, c.aclOptions...)
	acl, err := hadoop.NewACLClient(conf, opts...)
	if err != nil {
		return err
	}
	return acl.SetACL(ctx, groups, paths, permission)
}

// ListGroups returns the configured group inventory.
func (c *Client) ListGroups(_ context.Context) ([]authz.Group, error) {
	return authz.GroupsFromNames(c.groups), nil
}

func (c *Client) exec(ctx context.Context, stmt string) error {
	c.logger.Debug("sentry exec", "statement", stmt)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: %w", stmt, classify(err))
	}
	return nil
}

// queryColumn returns one named column of every row of stmt.
func (c *Client) queryColumn(ctx context.Context, stmt, column string) ([]string, error) {
	rows, err := c.query(ctx, stmt, column)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row[0]
	}
	return out, nil
}

// query runs stmt and returns the named columns of every row. Columns are
// matched case-insensitively, ignoring any "table." prefix the driver adds.
// When a name is not found the column at the same position is used.
func (c *Client) query(ctx context.Context, stmt string, columns ...string) ([][]string, error) {
	c.logger.Debug("sentry query", "statement", stmt)
	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, classify(err))
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, classify(err))
	}
	index := make([]int, len(columns))
	for i, want := range columns {
		index[i] = -1
		for j, name := range names {
			if dot := strings.LastIndex(name, "."); dot >= 0 {
				name = name[dot+1:]
			}
			if strings.EqualFold(name, want) {
				index[i] = j
				break
			}
		}
		if index[i] < 0 {
			if i >= len(names) {
				return nil, fmt.Errorf("%s: result has no column %q", stmt, want)
			}
			index[i] = i
		}
	}

	var out [][]string
	values := make([]sql.NullString, len(names))
	dest := make([]any, len(names))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%s: %w", stmt, classify(err))
		}
		row := make([]string, len(columns))
		for i, j := range index {
			row[i] = values[j].String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, classify(err))
	}
	return out, nil
}

// classify marks connectivity failures with authz.ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", authz.ErrStoreUnavailable, err)
	}
	return err
}
