package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the SQL differences between the supported engines.
// Queries are written with ? placeholders and passed through Rebind.
type Dialect struct {
	Name string
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres"}
)

func (d Dialect) IsPostgres() bool { return d.Name == Postgres.Name }

// Rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func (d Dialect) Rebind(query string) string {
	if !d.IsPostgres() {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ILike renders a case-insensitive pattern match. SQLite LIKE already folds
// ASCII case.
func (d Dialect) ILike(col string) string {
	if d.IsPostgres() {
		return col + " ILIKE ?"
	}
	return col + " LIKE ?"
}

// Contains renders a case-sensitive substring match.
func (d Dialect) Contains(col string) string {
	if d.IsPostgres() {
		return "strpos(" + col + ", ?) > 0"
	}
	return "instr(" + col + ", ?) > 0"
}

// IsNot renders a null-safe inequality against a bound value.
func (d Dialect) IsNot(col string) string {
	if d.IsPostgres() {
		return col + " IS DISTINCT FROM ?"
	}
	return col + " IS NOT ?"
}

// LockSuffix is appended to a SELECT to take row locks. SQLite transactions
// are opened IMMEDIATE and already hold the write lock.
func (d Dialect) LockSuffix() string {
	if d.IsPostgres() {
		return " FOR UPDATE"
	}
	return ""
}

// IsConstraintViolation reports integrity errors from either driver.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// Time renders t as a query argument: native for PostgreSQL, fixed-width
// text for SQLite.
func (d Dialect) Time(t time.Time) any {
	if d.IsPostgres() {
		return t.UTC()
	}
	return NewTime(t)
}

// timeLayout sorts lexically for UTC values.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Time stores timestamps as fixed-width UTC text and scans from either
// text (SQLite) or native timestamps (PostgreSQL).
type Time struct {
	Time  time.Time
	Valid bool
}

// NewTime wraps t for use as a query argument.
func NewTime(t time.Time) Time { return Time{Time: t, Valid: true} }

func (t Time) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time.UTC().Format(timeLayout), nil
}

func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("db.Time: unsupported scan type %T", src)
	}
}

func (t *Time) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("db.Time: cannot parse %q", s)
}
