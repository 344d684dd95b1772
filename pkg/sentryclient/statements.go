package sentryclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

// Permissions and object types accepted in GRANT and REVOKE statements.
var (
	permissions = map[string]string{
		"select": "SELECT",
		"insert": "INSERT",
		"all":    "ALL",
	}
	objectTypes = map[string]string{
		"server":   "SERVER",
		"database": "DATABASE",
		"table":    "TABLE",
		"uri":      "URI",
	}
)

// quoteIdent backtick-quotes a role, group, database or table name. Names
// failing authz.CheckIdentifier are rejected before any SQL is sent.
func quoteIdent(name string) (string, error) {
	if err := authz.CheckIdentifier(name); err != nil {
		return "", &authz.Error{Kind: authz.KindInvalidArgument, Err: err}
	}
	return "`" + name + "`", nil
}

func quoteString(s string) (string, error) {
	if strings.ContainsAny(s, "'\\\n\r") {
		return "", invalid(fmt.Sprintf("uri %q contains an illegal character", s))
	}
	return "'" + s + "'", nil
}

func roleGroupStatement(format, role, group string) (string, error) {
	r, err := quoteIdent(role)
	if err != nil {
		return "", err
	}
	g, err := quoteIdent(group)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, r, g), nil
}

func privilegeStatement(format, permission, objectType, objectName, role string) (string, error) {
	perm, ok := permissions[strings.ToLower(permission)]
	if !ok {
		return "", invalid(fmt.Sprintf("unsupported permission %q", permission))
	}
	typ, ok := objectTypes[strings.ToLower(objectType)]
	if !ok {
		return "", invalid(fmt.Sprintf("unsupported object type %q", objectType))
	}
	obj, err := objectRef(typ, objectName)
	if err != nil {
		return "", err
	}
	r, err := quoteIdent(role)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, perm, typ, obj, r), nil
}

// objectRef renders the object of a privilege statement.
func objectRef(typ, name string) (string, error) {
	switch typ {
	case "URI":
		return quoteString(name)
	case "TABLE":
		db, table, ok := strings.Cut(name, ".")
		if !ok {
			return "", invalid(fmt.Sprintf("table object %q must be database.table", name))
		}
		qdb, err := quoteIdent(db)
		if err != nil {
			return "", err
		}
		qt, err := quoteIdent(table)
		if err != nil {
			return "", err
		}
		return qdb + "." + qt, nil
	default:
		return quoteIdent(name)
	}
}

func invalid(msg string) error {
	return &authz.Error{Kind: authz.KindInvalidArgument, Err: errors.New(msg)}
}
