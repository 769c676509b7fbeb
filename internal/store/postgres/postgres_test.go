package postgres

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/store"
	"github.com/JonMunkholm/csvshare/internal/store/storetest"
)

// newTestStore connects to CSVSHARE_TEST_DATABASE_URL and truncates every
// table. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	url := os.Getenv("CSVSHARE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CSVSHARE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, url, PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE file_access, cells, files, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestCellsQuery_Unfiltered(t *testing.T) {
	id := uuid.New()
	query, args := cellsQuery(id, nil)

	if strings.Contains(query, "HAVING") {
		t.Errorf("unfiltered query should not aggregate: %s", query)
	}
	if len(args) != 1 || args[0] != id {
		t.Errorf("args = %v, want [%v]", args, id)
	}
}

func TestCellsQuery_Filtered(t *testing.T) {
	id := uuid.New()
	query, args := cellsQuery(id, map[string]string{"name": "a%", "city": "x"})

	// Columns are sorted: city first, then name.
	want := []any{id, "city", "%x%", "name", `%a\%%`, 2}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], want[i])
		}
	}

	for _, frag := range []string{
		`(column_name = $2 AND value ILIKE $3 ESCAPE '\')`,
		`(column_name = $4 AND value ILIKE $5 ESCAPE '\')`,
		`HAVING COUNT(DISTINCT column_name) = $6`,
		`ORDER BY c.row_number, c.id`,
	} {
		if !strings.Contains(query, frag) {
			t.Errorf("query missing %q:\n%s", frag, query)
		}
	}
}
