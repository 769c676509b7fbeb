// Package store defines the storage contract for users, files, access
// grants and cell values.
//
// Every operation runs inside a caller-controlled transaction obtained from
// [Store.Begin]. Nothing is committed implicitly; the caller decides the
// boundary with [Tx.Commit] or [Tx.Rollback]. Integrity violations are
// reported as [*ConstraintError], and depending on the backend they may only
// surface when the transaction commits.
//
// Two backends live in sub-packages: postgres (pgx) and sqlite (gorm).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoRows is returned by single-row lookups when no row matches.
var ErrNoRows = errors.New("store: no rows")

// User is a registered account.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
}

// File is an uploaded CSV table. ColumnOrder holds the header names joined
// by commas, in header order.
type File struct {
	ID          uuid.UUID
	Name        string
	OwnerID     uuid.UUID
	ColumnOrder string
	CreatedAt   time.Time
}

// Cell is a single (file, column, row) value.
type Cell struct {
	FileID     uuid.UUID
	ColumnName string
	RowNumber  int
	Value      string
}

// Grant gives a user read access to a file they do not own.
type Grant struct {
	ID     uuid.UUID
	FileID uuid.UUID
	UserID uuid.UUID
}

// GrantedUser is a grant joined with the grantee's username.
type GrantedUser struct {
	FileID   uuid.UUID
	UserID   uuid.UUID
	Username string
}

// Store opens transactions against a backend.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Tx is a single storage session. It is not safe for concurrent use.
// Rollback after a successful Commit is a no-op, so callers can always
// defer Rollback.
type Tx interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	// DeleteUser removes the user's grants and owned files, then the user.
	// Reports whether the user row existed.
	DeleteUser(ctx context.Context, id uuid.UUID) (bool, error)

	CreateFile(ctx context.Context, name string, ownerID uuid.UUID, columnOrder string) (File, error)
	GetFile(ctx context.Context, id uuid.UUID) (File, error)
	// DeleteFile removes grants, cells and the file row, in that order.
	DeleteFile(ctx context.Context, id uuid.UUID) (bool, error)
	// FilesVisibleTo returns files owned by or granted to userID, each once.
	FilesVisibleTo(ctx context.Context, userID uuid.UUID) ([]File, error)

	// CreateCells inserts a batch of cells. Inserts are independent of each
	// other and are not checked for duplicate (file, column, row) keys.
	CreateCells(ctx context.Context, cells []Cell) error
	// CellsForFile returns the file's cells ordered by row number. With
	// filters, only rows whose cells substring-match (case-insensitive)
	// every filter column are returned.
	CellsForFile(ctx context.Context, fileID uuid.UUID, filters map[string]string) ([]Cell, error)

	CreateGrant(ctx context.Context, fileID, userID uuid.UUID) (Grant, error)
	HasGrant(ctx context.Context, fileID, userID uuid.UUID) (bool, error)
	DeleteGrant(ctx context.Context, fileID, userID uuid.UUID) (bool, error)
	GrantsForFile(ctx context.Context, fileID uuid.UUID) ([]GrantedUser, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
