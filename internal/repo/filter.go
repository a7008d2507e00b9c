package repo

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"spycat/internal/db"
)

const opSep = "__"

// where compiles filters into a SQL condition with ? placeholders. Keys are
// processed in sorted order so the output is deterministic.
func where(d db.Dialect, table string, fields Fields, filters Filters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		clauses []string
		args    []any
	)
	for _, key := range keys {
		clause, clauseArgs, err := condition(d, table, fields, key, filters[key])
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func condition(d db.Dialect, table string, fields Fields, key string, value any) (string, []any, error) {
	name, op, hasOp := strings.Cut(key, opSep)
	if !hasOp {
		op = "eq"
	}
	f, ok := fields[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: column %s not found in %s", ErrInvalidFilter, name, table)
	}
	col := name

	bad := func(err error) (string, []any, error) {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, key, err)
	}
	single := func(tmpl string) (string, []any, error) {
		arg, err := encode(d, f, value, false)
		if err != nil {
			return bad(err)
		}
		return tmpl, []any{arg}, nil
	}

	switch op {
	case "eq":
		if value == nil {
			return col + " IS NULL", nil, nil
		}
		return single(col + " = ?")
	case "ne":
		if value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return single(col + " <> ?")
	case "is_not":
		if value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return single(d.IsNot(col))
	case "lt":
		return single(col + " < ?")
	case "le":
		return single(col + " <= ?")
	case "gt":
		return single(col + " > ?")
	case "ge":
		return single(col + " >= ?")
	case "contains", "ilike":
		if f.Kind != String {
			return bad(fmt.Errorf("%s requires a string field", op))
		}
		s, ok := value.(string)
		if !ok {
			return bad(fmt.Errorf("%s requires a string operand, got %T", op, value))
		}
		if op == "contains" {
			return d.Contains(col), []any{s}, nil
		}
		return d.ILike(col), []any{s}, nil
	case "in", "not_in":
		items, err := listOperand(value)
		if err != nil {
			return bad(err)
		}
		if len(items) == 0 {
			if op == "in" {
				return "1=0", nil, nil
			}
			return "1=1", nil, nil
		}
		args := make([]any, 0, len(items))
		for _, item := range items {
			arg, err := encode(d, f, item, false)
			if err != nil {
				return bad(err)
			}
			args = append(args, arg)
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
		if op == "in" {
			return col + " IN (" + marks + ")", args, nil
		}
		return col + " NOT IN (" + marks + ")", args, nil
	default:
		return "", nil, fmt.Errorf("%w: action %s not found", ErrInvalidFilter, op)
	}
}

// listOperand accepts any slice or array for in/not_in.
func listOperand(value any) ([]any, error) {
	if value == nil {
		return nil, fmt.Errorf("list operand is nil")
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("list operand required, got %T", value)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// orderClause parses "field" or "-field". Tables with an id column break
// ties on it so pages stay stable.
func orderClause(fields Fields, orderBy string) (string, error) {
	if orderBy == "" {
		return "", nil
	}
	name, desc := strings.CutPrefix(orderBy, "-")
	if _, ok := fields[name]; !ok {
		return "", fmt.Errorf("%w: order by unknown column %s", ErrInvalidFilter, name)
	}
	clause := " ORDER BY " + name + " ASC"
	if desc {
		clause = " ORDER BY " + name + " DESC NULLS LAST"
	}
	if _, ok := fields["id"]; ok && name != "id" {
		clause += ", id ASC"
	}
	return clause, nil
}

// describe renders filters for error messages, e.g. "id=1b2c…".
func describe(filters Filters) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, filters[k]))
	}
	return strings.Join(parts, ", ")
}
