package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ConstraintKind classifies an integrity violation.
type ConstraintKind int

const (
	UniqueViolation ConstraintKind = iota + 1
	ForeignKeyViolation
)

func (k ConstraintKind) String() string {
	switch k {
	case UniqueViolation:
		return "unique violation"
	case ForeignKeyViolation:
		return "foreign key violation"
	default:
		return "constraint violation"
	}
}

// ConstraintError reports a violated integrity constraint. Constraint is the
// backend's constraint name when known.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s on %s: %v", e.Kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a ConstraintError of the given kind.
func IsConstraint(err error, kind ConstraintKind) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Kind == kind
}

// EscapeLike escapes LIKE metacharacters with a backslash so value matches
// literally inside a pattern declared with ESCAPE '\'.
func EscapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}

// ContainsPattern returns a LIKE pattern matching value anywhere.
func ContainsPattern(value string) string {
	return "%" + EscapeLike(value) + "%"
}

// FilterColumns returns the filter map's keys in sorted order so generated
// SQL is stable across calls.
func FilterColumns(filters map[string]string) []string {
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
