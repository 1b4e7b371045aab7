package sqlstore

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects SQL flavour, driver and migrations directory.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// sqlite stores timestamps as fixed-width UTC text so lexical order matches
// chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// ParseDialect maps a backend name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported sql dialect %q", name)
}

// DriverName is the database/sql driver registered for d.
func (d Dialect) DriverName() string {
	return string(d)
}

// SQLiteDSN builds a modernc DSN with a busy timeout and WAL journaling.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// rebind rewrites '?' placeholders to $n for postgres.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (d Dialect) timeArg(t time.Time) any {
	if d == SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func (d Dialect) boolArg(v bool) any {
	if d == SQLite {
		if v {
			return 1
		}
		return 0
	}
	return v
}

// SQLite's LOWER folds ASCII only; search needs the same Unicode folding
// the in-memory predicate uses.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("unicode_lower", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
}

func (d Dialect) lowerExpr(col string) string {
	if d == SQLite {
		return "unicode_lower(" + col + ")"
	}
	return "LOWER(" + col + ")"
}

func (d Dialect) yearExpr(col string) string {
	if d == SQLite {
		return "CAST(strftime('%Y', " + col + ") AS INTEGER)"
	}
	return "CAST(EXTRACT(YEAR FROM " + col + " AT TIME ZONE 'UTC') AS INTEGER)"
}

func (d Dialect) monthExpr(col string) string {
	if d == SQLite {
		return "CAST(strftime('%m', " + col + ") AS INTEGER)"
	}
	return "CAST(EXTRACT(MONTH FROM " + col + " AT TIME ZONE 'UTC') AS INTEGER)"
}

// uniqueViolation reports whether err is a unique-constraint failure and, if
// it can tell, on which column.
func (d Dialect) uniqueViolation(err error) (bool, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true, columnFromConstraint(pqErr.Constraint)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true, columnFromMessage(liteErr.Error())
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true, columnFromMessage(err.Error())
	}
	return false, ""
}

func columnFromConstraint(name string) string {
	switch {
	case strings.Contains(name, "email"):
		return "email"
	case strings.Contains(name, "username"):
		return "username"
	}
	return ""
}

func columnFromMessage(msg string) string {
	switch {
	case strings.Contains(msg, "users.email"):
		return "email"
	case strings.Contains(msg, "users.username"):
		return "username"
	}
	return ""
}

// timeValue scans TEXT (sqlite) or TIMESTAMPTZ (postgres) into a time.Time.
type timeValue struct {
	t *time.Time
}

func (v timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v.t = time.Time{}
		return nil
	case time.Time:
		*v.t = x.UTC()
		return nil
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (v timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse stored time %q: %w", s, err)
	}
	*v.t = t.UTC()
	return nil
}
