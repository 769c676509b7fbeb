// Package table rebuilds column-major tables from stored cells and sorts
// them by composite keys.
package table

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/JonMunkholm/csvshare/internal/store"
)

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// ParseDirection maps "asc" and "desc" to a Direction. Anything else is
// rejected.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "asc":
		return Asc, true
	case "desc":
		return Desc, true
	default:
		return Asc, false
	}
}

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// SortKey orders rows by one column.
type SortKey struct {
	Column    string
	Direction Direction
}

// Table is a column-major table. Every name in Columns has an entry in Data,
// possibly empty.
type Table struct {
	Columns []string
	Data    map[string][]string
}

// Assemble groups cells into columns. Cells must already be ordered by row
// number; values are appended in that order. Cells for undeclared columns
// are dropped.
func Assemble(columns []string, cells []store.Cell) Table {
	t := Table{
		Columns: append([]string(nil), columns...),
		Data:    make(map[string][]string, len(columns)),
	}
	for _, col := range columns {
		t.Data[col] = []string{}
	}
	for _, c := range cells {
		if vals, ok := t.Data[c.ColumnName]; ok {
			t.Data[c.ColumnName] = append(vals, c.Value)
		}
	}
	return t
}

// Len returns the number of rows, which is the length of the longest column.
func (t Table) Len() int {
	n := 0
	for _, col := range t.Columns {
		if l := len(t.Data[col]); l > n {
			n = l
		}
	}
	return n
}

// Rows zips the columns into rows in column order. Short columns are padded
// with empty strings.
func (t Table) Rows() [][]string {
	n := t.Len()
	rows := make([][]string, n)
	for r := range rows {
		row := make([]string, len(t.Columns))
		for c, col := range t.Columns {
			if vals := t.Data[col]; r < len(vals) {
				row[c] = vals[r]
			}
		}
		rows[r] = row
	}
	return rows
}

// FromRows is the inverse of Rows.
func FromRows(columns []string, rows [][]string) Table {
	t := Table{
		Columns: append([]string(nil), columns...),
		Data:    make(map[string][]string, len(columns)),
	}
	for c, col := range columns {
		vals := make([]string, len(rows))
		for r, row := range rows {
			if c < len(row) {
				vals[r] = row[c]
			}
		}
		t.Data[col] = vals
	}
	return t
}

// Sort returns t with rows reordered by keys. The sort is stable: rows that
// compare equal under every key keep their order. Keys naming unknown
// columns are ignored, and with no usable keys t is returned unchanged.
func Sort(t Table, keys []SortKey) Table {
	index := make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		index[col] = i
	}

	type resolved struct {
		col  int
		desc bool
	}
	var rk []resolved
	for _, k := range keys {
		if i, ok := index[k.Column]; ok {
			rk = append(rk, resolved{col: i, desc: k.Direction == Desc})
		}
	}
	if len(rk) == 0 {
		return t
	}

	rows := t.Rows()
	sort.SliceStable(rows, func(a, b int) bool {
		for _, k := range rk {
			x, y := rows[a][k.col], rows[b][k.col]
			if x == y {
				continue
			}
			if k.desc {
				return x > y
			}
			return x < y
		}
		return false
	})
	return FromRows(t.Columns, rows)
}

// MarshalJSON writes {"col": [values...], ...} with keys in column order.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range t.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		vals := t.Data[col]
		if vals == nil {
			vals = []string{}
		}
		val, err := json.Marshal(vals)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
