package storage

import (
	"sort"
	"strings"
	"time"

	"codeweave/backend/pkg/models"
)

// Filters is an equality-only conjunction over named fields: every entry
// must match for a row to be included.
type Filters map[string]any

// Fields is a partial-update patch: only the named fields change.
type Fields map[string]any

// ListOptions shapes a list query. Limit <= 0 means no limit; Offset is
// zero-based. OrderBy names a single field, with a leading '-' for
// descending order.
type ListOptions struct {
	Filters Filters
	Limit   int
	Offset  int
	OrderBy string
}

// ParseOrderBy splits an order_by expression into the field name and
// direction. An empty expression yields an empty field.
func ParseOrderBy(orderBy string) (field string, descending bool) {
	if strings.HasPrefix(orderBy, "-") {
		return orderBy[1:], true
	}
	return orderBy, false
}

// SortedKeys returns the keys of a filter or patch map in a stable
// order, so generated queries are deterministic.
func SortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tx is an opaque handle for an open transaction returned by BeginTx.
// Only the adapter that created it can commit or roll it back.
type Tx interface{}

// LogQuery narrows a log listing. Level filters by severity when set;
// Start/End bound the log timestamp when non-nil (inclusive).
type LogQuery struct {
	Level models.LogLevel
	Start *time.Time
	End   *time.Time
}
