package core

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JonMunkholm/csvshare/internal/table"
)

// QueryParam is one key=value pair from a query string.
type QueryParam struct {
	Key   string
	Value string
}

// TableQuery is the filter and sort applied to a table fetch.
type TableQuery struct {
	Filters map[string]string
	Sort    []table.SortKey
}

// ParseQueryParams splits a raw query string into pairs, keeping the order
// they appear in. url.Values cannot be used because it loses that order.
func ParseQueryParams(rawQuery string) ([]QueryParam, error) {
	var params []QueryParam
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%w: query key %q: %v", ErrInvalidInput, k, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: query value for %q: %v", ErrInvalidInput, key, err)
		}
		params = append(params, QueryParam{Key: key, Value: val})
	}
	return params, nil
}

// ParseTableQuery reads "filter,direction" values keyed by column name and
// keeps only the declared columns.
func ParseTableQuery(columns []string, params []QueryParam) TableQuery {
	return NewTableQuery(params).Restrict(columns)
}

// NewTableQuery reads "filter,direction" values keyed by column name.
// Empty filters and directions other than asc or desc are dropped. A
// repeated column keeps its first position and its last value. Sort keys
// follow query order.
func NewTableQuery(params []QueryParam) TableQuery {
	var (
		order  []string
		latest = make(map[string]string)
	)
	for _, p := range params {
		if p.Key == "" {
			continue
		}
		if _, seen := latest[p.Key]; !seen {
			order = append(order, p.Key)
		}
		latest[p.Key] = p.Value
	}

	q := TableQuery{Filters: make(map[string]string)}
	for _, col := range order {
		parts := strings.Split(latest[col], ",")
		if parts[0] != "" {
			q.Filters[col] = parts[0]
		}
		if len(parts) > 1 {
			if dir, ok := table.ParseDirection(parts[1]); ok {
				q.Sort = append(q.Sort, table.SortKey{Column: col, Direction: dir})
			}
		}
	}
	return q
}

// Restrict drops filters and sort keys on columns outside columns.
func (q TableQuery) Restrict(columns []string) TableQuery {
	declared := make(map[string]bool, len(columns))
	for _, c := range columns {
		declared[c] = true
	}

	out := TableQuery{Filters: make(map[string]string, len(q.Filters))}
	for col, v := range q.Filters {
		if declared[col] {
			out.Filters[col] = v
		}
	}
	for _, k := range q.Sort {
		if declared[k.Column] {
			out.Sort = append(out.Sort, k)
		}
	}
	return out
}
