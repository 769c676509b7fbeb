package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/store"
	"github.com/JonMunkholm/csvshare/internal/store/sqlite"
)

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return st
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback(ctx)

	owner, _ := tx.CreateUser(ctx, "owner", "h")
	reader, _ := tx.CreateUser(ctx, "reader", "h")
	other, _ := tx.CreateUser(ctx, "other", "h")
	file, err := tx.CreateFile(ctx, "f.csv", owner.ID, "a,b")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if _, err := tx.CreateGrant(ctx, file.ID, reader.ID); err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	tests := []struct {
		name    string
		fileID  uuid.UUID
		userID  uuid.UUID
		level   Level
		wantErr error
	}{
		{"owner reads", file.ID, owner.ID, LevelReader, nil},
		{"owner owns", file.ID, owner.ID, LevelOwner, nil},
		{"grantee reads", file.ID, reader.ID, LevelReader, nil},
		{"grantee cannot own", file.ID, reader.ID, LevelOwner, ErrForbidden},
		{"stranger cannot read", file.ID, other.ID, LevelReader, ErrForbidden},
		{"stranger cannot own", file.ID, other.ID, LevelOwner, ErrForbidden},
		{"missing file", uuid.New(), owner.ID, LevelReader, ErrFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := authorize(ctx, tx, tt.fileID, tt.userID, tt.level)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("authorize() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("authorize() error = %v", err)
			}
			if got.ID != file.ID {
				t.Errorf("authorize() file = %v, want %v", got.ID, file.ID)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if LevelOwner.String() != "owner" || LevelReader.String() != "reader" {
		t.Errorf("Level strings = %q, %q", LevelOwner, LevelReader)
	}
}
