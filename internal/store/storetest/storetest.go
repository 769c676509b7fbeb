// Package storetest holds behavioural tests shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/store"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UserRoundTrip", testUserRoundTrip},
		{"DuplicateUsername", testDuplicateUsername},
		{"FileRequiresOwner", testFileRequiresOwner},
		{"CellsOrderedByRow", testCellsOrderedByRow},
		{"CellsFiltered", testCellsFiltered},
		{"FilterFoldsUnicodeCase", testFilterFoldsUnicodeCase},
		{"FilterEscapesWildcards", testFilterEscapesWildcards},
		{"FilterCountsDistinctColumns", testFilterCountsDistinctColumns},
		{"DeleteFileCascades", testDeleteFileCascades},
		{"DeleteUserCascades", testDeleteUserCascades},
		{"FilesVisibleTo", testFilesVisibleTo},
		{"Grants", testGrants},
		{"RollbackDiscards", testRollbackDiscards},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func begin(t *testing.T, s store.Store) store.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

func commit(t *testing.T, tx store.Tx) {
	t.Helper()
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func createUser(t *testing.T, s store.Store, username string) store.User {
	t.Helper()
	tx := begin(t, s)
	u, err := tx.CreateUser(context.Background(), username, "hash-"+username)
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
	commit(t, tx)
	return u
}

// createTable stores a file whose cells are rows laid out row-major.
func createTable(t *testing.T, s store.Store, owner uuid.UUID, columns []string, rows [][]string) store.File {
	t.Helper()
	ctx := context.Background()
	tx := begin(t, s)

	order := ""
	for i, c := range columns {
		if i > 0 {
			order += ","
		}
		order += c
	}
	f, err := tx.CreateFile(ctx, "test.csv", owner, order)
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	var cells []store.Cell
	for r, row := range rows {
		for c, v := range row {
			cells = append(cells, store.Cell{FileID: f.ID, ColumnName: columns[c], RowNumber: r, Value: v})
		}
	}
	if err := tx.CreateCells(ctx, cells); err != nil {
		t.Fatalf("CreateCells() error = %v", err)
	}
	commit(t, tx)
	return f
}

func cellsForFile(t *testing.T, s store.Store, fileID uuid.UUID, filters map[string]string) []store.Cell {
	t.Helper()
	tx := begin(t, s)
	defer tx.Rollback(context.Background())
	cells, err := tx.CellsForFile(context.Background(), fileID, filters)
	if err != nil {
		t.Fatalf("CellsForFile() error = %v", err)
	}
	return cells
}

func rowNumbers(cells []store.Cell) []int {
	var out []int
	for _, c := range cells {
		if len(out) == 0 || out[len(out)-1] != c.RowNumber {
			out = append(out, c.RowNumber)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Tests
// ----------------------------------------------------------------------------

func testUserRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "alice")

	tx := begin(t, s)
	got, err := tx.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if diff := cmp.Diff(u, got); diff != "" {
		t.Errorf("GetUser() mismatch (-want +got):\n%s", diff)
	}

	got, err = tx.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("GetUserByUsername().ID = %v, want %v", got.ID, u.ID)
	}

	if _, err := tx.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNoRows) {
		t.Errorf("GetUserByUsername(missing) error = %v, want ErrNoRows", err)
	}
	if _, err := tx.GetUser(ctx, uuid.New()); !errors.Is(err, store.ErrNoRows) {
		t.Errorf("GetUser(missing) error = %v, want ErrNoRows", err)
	}
}

func testDuplicateUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	createUser(t, s, "alice")

	tx := begin(t, s)
	_, err := tx.CreateUser(ctx, "alice", "other")
	if err == nil {
		err = tx.Commit(ctx)
	}
	if !store.IsConstraint(err, store.UniqueViolation) {
		t.Fatalf("duplicate username error = %v, want unique violation", err)
	}
}

func testFileRequiresOwner(t *testing.T, s store.Store) {
	ctx := context.Background()
	tx := begin(t, s)
	_, err := tx.CreateFile(ctx, "orphan.csv", uuid.New(), "a")
	if err == nil {
		err = tx.Commit(ctx)
	}
	if !store.IsConstraint(err, store.ForeignKeyViolation) {
		t.Fatalf("orphan file error = %v, want foreign key violation", err)
	}
}

func testCellsOrderedByRow(t *testing.T, s store.Store) {
	owner := createUser(t, s, "alice")
	f := createTable(t, s, owner.ID, []string{"a", "b"}, [][]string{
		{"1", "2"},
		{"3", ""},
		{"5", "6"},
	})

	got := cellsForFile(t, s, f.ID, nil)
	want := []store.Cell{
		{FileID: f.ID, ColumnName: "a", RowNumber: 0, Value: "1"},
		{FileID: f.ID, ColumnName: "b", RowNumber: 0, Value: "2"},
		{FileID: f.ID, ColumnName: "a", RowNumber: 1, Value: "3"},
		{FileID: f.ID, ColumnName: "b", RowNumber: 1, Value: ""},
		{FileID: f.ID, ColumnName: "a", RowNumber: 2, Value: "5"},
		{FileID: f.ID, ColumnName: "b", RowNumber: 2, Value: "6"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CellsForFile() mismatch (-want +got):\n%s", diff)
	}
}

func testCellsFiltered(t *testing.T, s store.Store) {
	owner := createUser(t, s, "alice")
	f := createTable(t, s, owner.ID, []string{"name", "city"}, [][]string{
		{"Alice", "Oslo"},
		{"Bob", "Bergen"},
		{"alfred", "Bergen"},
		{"Carl", "Oslo"},
	})

	tests := []struct {
		name    string
		filters map[string]string
		want    []int
	}{
		{"single filter case-insensitive", map[string]string{"name": "AL"}, []int{0, 2}},
		{"two filters conjunctive", map[string]string{"name": "al", "city": "berg"}, []int{2}},
		{"no match", map[string]string{"city": "Paris"}, nil},
		{"unknown column matches nothing", map[string]string{"zip": "1"}, nil},
		{"empty map is passthrough", map[string]string{}, []int{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rowNumbers(cellsForFile(t, s, f.ID, tt.filters))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func testFilterFoldsUnicodeCase(t *testing.T, s store.Store) {
	owner := createUser(t, s, "alice")
	f := createTable(t, s, owner.ID, []string{"name", "x"}, [][]string{
		{"Ärzte", "1"},
		{"ärzte", "2"},
		{"Öl", "3"},
	})

	tests := []struct {
		filter string
		want   []int
	}{
		{"ä", []int{0, 1}},
		{"ÄRZ", []int{0, 1}},
		{"öL", []int{2}},
		{"ü", nil},
	}
	for _, tt := range tests {
		got := rowNumbers(cellsForFile(t, s, f.ID, map[string]string{"name": tt.filter}))
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("filter %q rows mismatch (-want +got):\n%s", tt.filter, diff)
		}
	}
}

func testFilterEscapesWildcards(t *testing.T, s store.Store) {
	owner := createUser(t, s, "alice")
	f := createTable(t, s, owner.ID, []string{"v"}, [][]string{
		{"50%"},
		{"500"},
		{"a_b"},
		{"axb"},
	})

	if got := rowNumbers(cellsForFile(t, s, f.ID, map[string]string{"v": "0%"})); !cmp.Equal(got, []int{0}) {
		t.Errorf("filter 0%% rows = %v, want [0]", got)
	}
	if got := rowNumbers(cellsForFile(t, s, f.ID, map[string]string{"v": "a_"})); !cmp.Equal(got, []int{2}) {
		t.Errorf("filter a_ rows = %v, want [2]", got)
	}
}

// Duplicate cells in one column must not stand in for a second filter.
func testFilterCountsDistinctColumns(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := createUser(t, s, "alice")
	f := createTable(t, s, owner.ID, []string{"a", "b"}, [][]string{{"x", "nope"}})

	tx := begin(t, s)
	if err := tx.CreateCells(ctx, []store.Cell{{FileID: f.ID, ColumnName: "a", RowNumber: 0, Value: "x"}}); err != nil {
		t.Fatalf("CreateCells() error = %v", err)
	}
	commit(t, tx)

	got := cellsForFile(t, s, f.ID, map[string]string{"a": "x", "b": "x"})
	if len(got) != 0 {
		t.Errorf("CellsForFile() = %v, want no rows", got)
	}
}

func testDeleteFileCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := createUser(t, s, "alice")
	reader := createUser(t, s, "bob")
	f := createTable(t, s, owner.ID, []string{"a"}, [][]string{{"1"}})

	tx := begin(t, s)
	if _, err := tx.CreateGrant(ctx, f.ID, reader.ID); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	commit(t, tx)

	tx = begin(t, s)
	deleted, err := tx.DeleteFile(ctx, f.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteFile() = %v, %v, want true, nil", deleted, err)
	}
	commit(t, tx)

	tx = begin(t, s)
	if _, err := tx.GetFile(ctx, f.ID); !errors.Is(err, store.ErrNoRows) {
		t.Errorf("GetFile(deleted) error = %v, want ErrNoRows", err)
	}
	if ok, _ := tx.HasGrant(ctx, f.ID, reader.ID); ok {
		t.Error("HasGrant(deleted file) = true, want false")
	}
	if cells, _ := tx.CellsForFile(ctx, f.ID, nil); len(cells) != 0 {
		t.Errorf("CellsForFile(deleted) = %d cells, want 0", len(cells))
	}
	deleted, err = tx.DeleteFile(ctx, f.ID)
	if err != nil || deleted {
		t.Errorf("DeleteFile(again) = %v, %v, want false, nil", deleted, err)
	}
}

func testDeleteUserCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	owned := createTable(t, s, alice.ID, []string{"a"}, [][]string{{"1"}})
	shared := createTable(t, s, bob.ID, []string{"b"}, [][]string{{"2"}})

	tx := begin(t, s)
	if _, err := tx.CreateGrant(ctx, shared.ID, alice.ID); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	if _, err := tx.CreateGrant(ctx, owned.ID, bob.ID); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	commit(t, tx)

	tx = begin(t, s)
	deleted, err := tx.DeleteUser(ctx, alice.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteUser() = %v, %v, want true, nil", deleted, err)
	}
	commit(t, tx)

	tx = begin(t, s)
	if _, err := tx.GetFile(ctx, owned.ID); !errors.Is(err, store.ErrNoRows) {
		t.Errorf("GetFile(owned by deleted user) error = %v, want ErrNoRows", err)
	}
	if _, err := tx.GetFile(ctx, shared.ID); err != nil {
		t.Errorf("GetFile(shared) error = %v, want nil", err)
	}
	grants, err := tx.GrantsForFile(ctx, shared.ID)
	if err != nil {
		t.Fatalf("GrantsForFile() error = %v", err)
	}
	if len(grants) != 0 {
		t.Errorf("GrantsForFile(shared) = %v, want none", grants)
	}
	files, err := tx.FilesVisibleTo(ctx, bob.ID)
	if err != nil {
		t.Fatalf("FilesVisibleTo() error = %v", err)
	}
	if len(files) != 1 || files[0].ID != shared.ID {
		t.Errorf("FilesVisibleTo(bob) = %v, want only shared file", files)
	}
}

func testFilesVisibleTo(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	carol := createUser(t, s, "carol")
	own := createTable(t, s, bob.ID, []string{"a"}, nil)
	granted := createTable(t, s, alice.ID, []string{"a"}, nil)
	createTable(t, s, carol.ID, []string{"a"}, nil)

	tx := begin(t, s)
	for i := 0; i < 2; i++ {
		if _, err := tx.CreateGrant(ctx, granted.ID, bob.ID); err != nil {
			t.Fatalf("CreateGrant() error = %v", err)
		}
	}
	commit(t, tx)

	tx = begin(t, s)
	files, err := tx.FilesVisibleTo(ctx, bob.ID)
	if err != nil {
		t.Fatalf("FilesVisibleTo() error = %v", err)
	}
	got := map[uuid.UUID]int{}
	for _, f := range files {
		got[f.ID]++
	}
	want := map[uuid.UUID]int{own.ID: 1, granted.ID: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FilesVisibleTo() mismatch (-want +got):\n%s", diff)
	}
}

func testGrants(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	f := createTable(t, s, alice.ID, []string{"a"}, nil)

	tx := begin(t, s)
	if ok, err := tx.HasGrant(ctx, f.ID, bob.ID); err != nil || ok {
		t.Fatalf("HasGrant(before) = %v, %v, want false, nil", ok, err)
	}
	for i := 0; i < 2; i++ {
		if _, err := tx.CreateGrant(ctx, f.ID, bob.ID); err != nil {
			t.Fatalf("CreateGrant() error = %v", err)
		}
	}
	if ok, err := tx.HasGrant(ctx, f.ID, bob.ID); err != nil || !ok {
		t.Fatalf("HasGrant(after) = %v, %v, want true, nil", ok, err)
	}

	grants, err := tx.GrantsForFile(ctx, f.ID)
	if err != nil {
		t.Fatalf("GrantsForFile() error = %v", err)
	}
	want := []store.GrantedUser{{FileID: f.ID, UserID: bob.ID, Username: "bob"}}
	if diff := cmp.Diff(want, grants); diff != "" {
		t.Errorf("GrantsForFile() mismatch (-want +got):\n%s", diff)
	}

	removed, err := tx.DeleteGrant(ctx, f.ID, bob.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteGrant() = %v, %v, want true, nil", removed, err)
	}
	if ok, _ := tx.HasGrant(ctx, f.ID, bob.ID); ok {
		t.Error("HasGrant(after delete) = true, want false")
	}
	removed, err = tx.DeleteGrant(ctx, f.ID, bob.ID)
	if err != nil || removed {
		t.Errorf("DeleteGrant(again) = %v, %v, want false, nil", removed, err)
	}
	commit(t, tx)
}

func testRollbackDiscards(t *testing.T, s store.Store) {
	ctx := context.Background()
	tx := begin(t, s)
	if _, err := tx.CreateUser(ctx, "ghost", "x"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	tx = begin(t, s)
	if _, err := tx.GetUserByUsername(ctx, "ghost"); !errors.Is(err, store.ErrNoRows) {
		t.Errorf("GetUserByUsername(rolled back) error = %v, want ErrNoRows", err)
	}
	commit(t, tx)
	if err := tx.Rollback(ctx); err != nil {
		t.Errorf("Rollback(after commit) error = %v, want nil", err)
	}
}
