package repo

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spycat/internal/db"
)

var (
	// ErrInvalidFilter marks a filter naming an unknown field or operator, or
	// carrying a value of the wrong type. It is a programming error.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidValue marks a create or update value that does not match its
	// field declaration.
	ErrInvalidValue = errors.New("invalid value")
)

type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
	UUID
	Time
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case UUID:
		return "uuid"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field declares one filterable and writable column.
type Field struct {
	Kind     Kind
	Nullable bool
}

// Fields maps field names (which are also column names) to their declaration.
type Fields map[string]Field

// Values is a set of column assignments for create and update.
type Values map[string]any

// Filters is the declarative query DSL: "field" or "field__op" mapped to an
// operand. All entries are ANDed together.
type Filters map[string]any

// encode converts v into a driver argument for f. nil is accepted only for
// nullable fields unless allowNil is set.
func encode(d db.Dialect, f Field, v any, allowNil bool) (any, error) {
	if v == nil {
		if f.Nullable || allowNil {
			return nil, nil
		}
		return nil, fmt.Errorf("nil for non-nullable %s", f.Kind)
	}
	switch f.Kind {
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case *string:
			if x == nil {
				return encode(d, f, nil, allowNil)
			}
			return *x, nil
		}
	case Int:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		}
	case Float:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		}
	case Bool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case UUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x.String(), nil
		case *uuid.UUID:
			if x == nil {
				return encode(d, f, nil, allowNil)
			}
			return x.String(), nil
		case string:
			id, err := uuid.Parse(x)
			if err != nil {
				return nil, err
			}
			return id.String(), nil
		}
	case Time:
		if x, ok := v.(time.Time); ok {
			return d.Time(x), nil
		}
	}
	return nil, fmt.Errorf("%T is not a %s", v, f.Kind)
}

// fieldDest decodes one projected column by kind.
type fieldDest interface {
	ptr() any
	value() any
}

func newFieldDest(k Kind) fieldDest {
	switch k {
	case Int:
		return &nullDest[int64]{}
	case Float:
		return &nullDest[float64]{}
	case Bool:
		return &nullDest[bool]{}
	case UUID:
		return &uuidDest{}
	case Time:
		return &timeDest{}
	default:
		return &nullDest[string]{}
	}
}

type nullDest[V any] struct{ v sql.Null[V] }

func (d *nullDest[V]) ptr() any { return &d.v }

func (d *nullDest[V]) value() any {
	if !d.v.Valid {
		return nil
	}
	return d.v.V
}

type uuidDest struct{ v uuid.NullUUID }

func (d *uuidDest) ptr() any { return &d.v }

func (d *uuidDest) value() any {
	if !d.v.Valid {
		return nil
	}
	return d.v.UUID
}

type timeDest struct{ v db.Time }

func (d *timeDest) ptr() any { return &d.v }

func (d *timeDest) value() any {
	if !d.v.Valid {
		return nil
	}
	return d.v.Time
}
