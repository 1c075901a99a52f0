package schema

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an unknown table, or an unknown column of a known table.
type NotFoundError struct {
	Table  string
	Column string // Empty when the table itself is unknown
}

func (e *NotFoundError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("column not found: %s.%s", e.Table, e.Column)
	}
	return fmt.Sprintf("table not found: %s", e.Table)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CollisionError reports a lookup key claimed by two different tables.
type CollisionError struct {
	Key      string
	Existing string
	Table    string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("schema collision: key %q resolves to both %s and %s", e.Key, e.Existing, e.Table)
}
