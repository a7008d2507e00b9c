package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"spycat/internal/apperr"
	"spycat/internal/db"
)

// Scanner is satisfied by *db.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Table describes how one entity type maps onto its table. Columns is the
// select list and must match the order Scan reads; Scan appends extra
// destinations after the entity columns.
type Table[T any] struct {
	Entity     string
	Name       string
	Fields     Fields
	Columns    []string
	Scan       func(s Scanner, extra ...any) (T, error)
	Timestamps bool
}

// Preload eagerly loads related rows into a fetched batch in place.
type Preload[T any] func(ctx context.Context, items []T) error

// Page selects a window of an ordered result.
type Page struct {
	Offset  int
	Limit   int
	OrderBy string
}

// Repository runs CRUD queries for one entity against db, usually the
// transaction of a unit-of-work scope.
type Repository[T any] struct {
	DB      db.DBTX
	Dialect db.Dialect
	Table   Table[T]
	Now     func() time.Time
}

func (r Repository[T]) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r Repository[T]) selectList() string {
	return strings.Join(r.Table.Columns, ",")
}

func (r Repository[T]) query(q string) string {
	return r.Dialect.Rebind(q)
}

// prepareInsert fills id and timestamps and encodes values in sorted column
// order.
func (r Repository[T]) prepareInsert(values Values) ([]string, []any, error) {
	row := make(Values, len(values)+3)
	for k, v := range values {
		row[k] = v
	}
	if _, ok := r.Table.Fields["id"]; ok {
		if _, set := row["id"]; !set {
			row["id"] = uuid.New()
		}
	}
	if r.Table.Timestamps {
		now := r.now()
		if _, set := row["created_at"]; !set {
			row["created_at"] = now
		}
		if _, set := row["updated_at"]; !set {
			row["updated_at"] = now
		}
	}
	return r.encodeValues(row)
}

func (r Repository[T]) encodeValues(values Values) ([]string, []any, error) {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		f, ok := r.Table.Fields[c]
		if !ok {
			return nil, nil, fmt.Errorf("%w: column %s not found in %s", ErrInvalidValue, c, r.Table.Name)
		}
		arg, err := encode(r.Dialect, f, values[c], false)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, c, err)
		}
		args = append(args, arg)
	}
	return cols, args, nil
}

func (r Repository[T]) writeErr(op string, err error, ident any) error {
	if db.IsConstraintViolation(err) {
		return apperr.NewAlreadyExists(r.Table.Entity, ident)
	}
	return fmt.Errorf("%s %s: %w", op, r.Table.Name, err)
}

func (r Repository[T]) readErr(op string, err error, filters Filters) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NewNotFound(r.Table.Entity, describe(filters))
	}
	return fmt.Errorf("%s %s: %w", op, r.Table.Name, err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Create inserts one row and returns it as stored.
func (r Repository[T]) Create(ctx context.Context, values Values) (T, error) {
	var zero T
	cols, args, err := r.prepareInsert(values)
	if err != nil {
		return zero, err
	}
	q := fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s) RETURNING %s`,
		r.Table.Name, strings.Join(cols, ","), placeholders(len(cols)), r.selectList())
	item, err := r.Table.Scan(db.QueryRow(ctx, r.DB, r.query(q), args...))
	if err != nil {
		return zero, r.writeErr("insert", err, describe(Filters(values)))
	}
	return item, nil
}

// CreateMany inserts rows in one statement, skipping rows that collide with
// an existing key. Every row must set the same fields.
func (r Repository[T]) CreateMany(ctx context.Context, rows []Values) error {
	if len(rows) == 0 {
		return nil
	}
	var (
		cols []string
		args []any
	)
	tuples := make([]string, 0, len(rows))
	for i, values := range rows {
		rowCols, rowArgs, err := r.prepareInsert(values)
		if err != nil {
			return err
		}
		if i == 0 {
			cols = rowCols
		} else if strings.Join(rowCols, ",") != strings.Join(cols, ",") {
			return fmt.Errorf("%w: row %d sets [%s], expected [%s]", ErrInvalidValue, i, strings.Join(rowCols, ","), strings.Join(cols, ","))
		}
		args = append(args, rowArgs...)
		tuples = append(tuples, "("+placeholders(len(rowCols))+")")
	}
	q := fmt.Sprintf(`INSERT INTO %s(%s) VALUES %s ON CONFLICT DO NOTHING`,
		r.Table.Name, strings.Join(cols, ","), strings.Join(tuples, ","))
	if _, err := r.DB.ExecContext(ctx, r.query(q), args...); err != nil {
		return r.writeErr("insert", err, fmt.Sprintf("%d rows", len(rows)))
	}
	return nil
}

// Get returns the first row matching filters or a NotFound error.
func (r Repository[T]) Get(ctx context.Context, filters Filters, preloads ...Preload[T]) (T, error) {
	var zero T
	cond, args, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return zero, err
	}
	q := `SELECT ` + r.selectList() + ` FROM ` + r.Table.Name + whereSQL(cond) + ` LIMIT 1`
	item, err := r.Table.Scan(db.QueryRow(ctx, r.DB, r.query(q), args...))
	if err != nil {
		return zero, r.readErr("get", err, filters)
	}
	items := []T{item}
	if err := r.preload(ctx, items, preloads); err != nil {
		return zero, err
	}
	return items[0], nil
}

// GetOneOrNone is Get without the NotFound error.
func (r Repository[T]) GetOneOrNone(ctx context.Context, filters Filters) (T, bool, error) {
	item, err := r.Get(ctx, filters)
	if apperr.IsKind(err, apperr.NotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		return item, false, err
	}
	return item, true, nil
}

// GetMulti returns one page plus the total number of matching rows.
func (r Repository[T]) GetMulti(ctx context.Context, page Page, filters Filters, preloads ...Preload[T]) ([]T, int, error) {
	cond, args, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return nil, 0, err
	}
	order, err := orderClause(r.Table.Fields, page.OrderBy)
	if err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + r.selectList() + `, COUNT(*) OVER() AS total_count FROM ` + r.Table.Name +
		whereSQL(cond) + order + ` LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)
	rows, err := r.DB.QueryContext(ctx, r.query(q), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.Table.Name, err)
	}
	var (
		items []T
		total int
	)
	for rows.Next() {
		item, err := r.Table.Scan(rows, &total)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan %s: %w", r.Table.Name, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	rows.Close()
	if len(items) == 0 && page.Offset > 0 {
		// The window count is lost when the page is past the end.
		if total, err = r.Count(ctx, filters); err != nil {
			return nil, 0, err
		}
	}
	if err := r.preload(ctx, items, preloads); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetMultiWithoutPagination returns every matching row in order.
func (r Repository[T]) GetMultiWithoutPagination(ctx context.Context, orderBy string, filters Filters) ([]T, error) {
	cond, args, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return nil, err
	}
	order, err := orderClause(r.Table.Fields, orderBy)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + r.selectList() + ` FROM ` + r.Table.Name + whereSQL(cond) + order
	return r.collect(ctx, "list", q, args)
}

func (r Repository[T]) collect(ctx context.Context, op, q string, args []any) ([]T, error) {
	rows, err := r.DB.QueryContext(ctx, r.query(q), args...)
	if err != nil {
		return nil, r.writeErr(op, err, op)
	}
	defer rows.Close()
	var items []T
	for rows.Next() {
		item, err := r.Table.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.Table.Name, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// findID locks onto the first matching row for single-row writes.
func (r Repository[T]) findID(ctx context.Context, filters Filters) (string, error) {
	cond, args, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return "", err
	}
	var id string
	q := `SELECT id FROM ` + r.Table.Name + whereSQL(cond) + ` LIMIT 1`
	if err := db.QueryRow(ctx, r.DB, r.query(q), args...).Scan(&id); err != nil {
		return "", r.readErr("get", err, filters)
	}
	return id, nil
}

func (r Repository[T]) setClause(values Values) (string, []any, error) {
	row := make(Values, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	if r.Table.Timestamps {
		if _, set := row["updated_at"]; !set {
			row["updated_at"] = r.now()
		}
	}
	if len(row) == 0 {
		return "", nil, fmt.Errorf("%w: nothing to update in %s", ErrInvalidValue, r.Table.Name)
	}
	cols, args, err := r.encodeValues(row)
	if err != nil {
		return "", nil, err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	return strings.Join(sets, ", "), args, nil
}

// Update changes the first row matching filters and returns it.
func (r Repository[T]) Update(ctx context.Context, filters Filters, values Values) (T, error) {
	var zero T
	id, err := r.findID(ctx, filters)
	if err != nil {
		return zero, err
	}
	set, args, err := r.setClause(values)
	if err != nil {
		return zero, err
	}
	args = append(args, id)
	q := `UPDATE ` + r.Table.Name + ` SET ` + set + ` WHERE id = ? RETURNING ` + r.selectList()
	item, err := r.Table.Scan(db.QueryRow(ctx, r.DB, r.query(q), args...))
	if err != nil {
		return zero, r.writeErr("update", err, describe(Filters(values)))
	}
	return item, nil
}

// UpdateMany changes every matching row and returns the updated rows.
func (r Repository[T]) UpdateMany(ctx context.Context, filters Filters, values Values) ([]T, error) {
	set, setArgs, err := r.setClause(values)
	if err != nil {
		return nil, err
	}
	cond, condArgs, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return nil, err
	}
	q := `UPDATE ` + r.Table.Name + ` SET ` + set + whereSQL(cond) + ` RETURNING ` + r.selectList()
	return r.collect(ctx, "update", q, append(setArgs, condArgs...))
}

// Delete removes the first row matching filters or returns NotFound.
func (r Repository[T]) Delete(ctx context.Context, filters Filters) error {
	id, err := r.findID(ctx, filters)
	if err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, r.query(`DELETE FROM `+r.Table.Name+` WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete %s: %w", r.Table.Name, err)
	}
	return nil
}

// DeleteMany removes every matching row; no match is not an error.
func (r Repository[T]) DeleteMany(ctx context.Context, filters Filters) error {
	cond, args, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, r.query(`DELETE FROM `+r.Table.Name+whereSQL(cond)), args...); err != nil {
		return fmt.Errorf("delete %s: %w", r.Table.Name, err)
	}
	return nil
}

// Upsert inserts values or, when conflictKeys collide with an existing row,
// overwrites that row's other fields. The stored row is returned.
func (r Repository[T]) Upsert(ctx context.Context, values Values, conflictKeys []string) (T, error) {
	var zero T
	if len(conflictKeys) == 0 {
		return zero, fmt.Errorf("%w: upsert requires conflict keys", ErrInvalidValue)
	}
	keys := make(map[string]bool, len(conflictKeys))
	for _, k := range conflictKeys {
		if _, ok := r.Table.Fields[k]; !ok {
			return zero, fmt.Errorf("%w: conflict column %s not found in %s", ErrInvalidValue, k, r.Table.Name)
		}
		keys[k] = true
	}
	cols, args, err := r.prepareInsert(values)
	if err != nil {
		return zero, err
	}
	var sets []string
	for _, c := range cols {
		if keys[c] || c == "id" || c == "created_at" {
			continue
		}
		sets = append(sets, c+" = excluded."+c)
	}
	if len(sets) == 0 {
		sets = append(sets, conflictKeys[0]+" = excluded."+conflictKeys[0])
	}
	q := fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s RETURNING %s`,
		r.Table.Name, strings.Join(cols, ","), placeholders(len(cols)),
		strings.Join(conflictKeys, ","), strings.Join(sets, ", "), r.selectList())
	item, err := r.Table.Scan(db.QueryRow(ctx, r.DB, r.query(q), args...))
	if err != nil {
		return zero, r.writeErr("upsert", err, describe(Filters(values)))
	}
	return item, nil
}

// Count returns the number of matching rows.
func (r Repository[T]) Count(ctx context.Context, filters Filters) (int, error) {
	cond, args, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return 0, err
	}
	var n int
	q := `SELECT COUNT(*) FROM ` + r.Table.Name + whereSQL(cond)
	if err := db.QueryRow(ctx, r.DB, r.query(q), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.Table.Name, err)
	}
	return n, nil
}

// GetFields projects the first matching row onto names. Values are decoded
// per field kind; SQL NULL becomes nil.
func (r Repository[T]) GetFields(ctx context.Context, filters Filters, names []string) (map[string]any, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no fields requested", ErrInvalidFilter)
	}
	decoders := make([]fieldDest, len(names))
	dest := make([]any, len(names))
	for i, n := range names {
		f, ok := r.Table.Fields[n]
		if !ok {
			return nil, fmt.Errorf("%w: column %s not found in %s", ErrInvalidFilter, n, r.Table.Name)
		}
		decoders[i] = newFieldDest(f.Kind)
		dest[i] = decoders[i].ptr()
	}
	cond, args, err := where(r.Dialect, r.Table.Name, r.Table.Fields, filters)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + strings.Join(names, ",") + ` FROM ` + r.Table.Name + whereSQL(cond) + ` LIMIT 1`
	if err := db.QueryRow(ctx, r.DB, r.query(q), args...).Scan(dest...); err != nil {
		return nil, r.readErr("get", err, filters)
	}
	out := make(map[string]any, len(names))
	for i, n := range names {
		out[n] = decoders[i].value()
	}
	return out, nil
}

func (r Repository[T]) preload(ctx context.Context, items []T, preloads []Preload[T]) error {
	if len(items) == 0 {
		return nil
	}
	for _, p := range preloads {
		if err := p(ctx, items); err != nil {
			return err
		}
	}
	return nil
}

func whereSQL(cond string) string {
	if cond == "" {
		return ""
	}
	return " WHERE " + cond
}
