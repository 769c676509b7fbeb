package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/metrics"
	"github.com/JonMunkholm/csvshare/internal/store"
	"github.com/JonMunkholm/csvshare/internal/table"
)

// FileSummary describes a file visible to a user.
type FileSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Columns   []string  `json:"columns"`
	Owned     bool      `json:"owned"`
	CreatedAt time.Time `json:"created_at"`
}

// AccessEntry is a user holding a grant on a file.
type AccessEntry struct {
	FileID   uuid.UUID `json:"file_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// Columns returns the file's declared column names in header order.
func Columns(f store.File) []string {
	if f.ColumnOrder == "" {
		return []string{}
	}
	return strings.Split(f.ColumnOrder, ",")
}

// ListFiles returns every file userID owns or has been granted, oldest first.
func (s *Service) ListFiles(ctx context.Context, userID uuid.UUID) ([]FileSummary, error) {
	var files []store.File
	err := s.inTx(ctx, func(tx store.Tx) error {
		var err error
		files, err = tx.FilesVisibleTo(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	out := make([]FileSummary, len(files))
	for i, f := range files {
		out[i] = FileSummary{
			ID:        f.ID,
			Name:      f.Name,
			OwnerID:   f.OwnerID,
			Columns:   Columns(f),
			Owned:     f.OwnerID == userID,
			CreatedAt: f.CreatedAt,
		}
	}
	return out, nil
}

// GetFileTable returns the file as a column-major table after applying q.
// Filters and sort keys on undeclared columns are ignored. The caller must
// own the file or hold a grant on it.
func (s *Service) GetFileTable(ctx context.Context, fileID, callerID uuid.UUID, q TableQuery) (table.Table, error) {
	var (
		columns []string
		cells   []store.Cell
	)
	err := s.inTx(ctx, func(tx store.Tx) error {
		file, err := authorize(ctx, tx, fileID, callerID, LevelReader)
		if err != nil {
			return err
		}
		columns = Columns(file)
		q = q.Restrict(columns)

		cells, err = tx.CellsForFile(ctx, fileID, q.Filters)
		if err != nil {
			return fmt.Errorf("read cells: %w", err)
		}
		return nil
	})
	if err != nil {
		return table.Table{}, accessError("get file table", err)
	}

	metrics.TableQueries.WithLabelValues(
		strconv.FormatBool(len(q.Filters) > 0),
		strconv.FormatBool(len(q.Sort) > 0),
	).Inc()

	return table.Sort(table.Assemble(columns, cells), q.Sort), nil
}

// ListAccess returns the users holding a grant on the file. Owner only.
func (s *Service) ListAccess(ctx context.Context, fileID, callerID uuid.UUID) ([]AccessEntry, error) {
	var grants []store.GrantedUser
	err := s.inTx(ctx, func(tx store.Tx) error {
		if _, err := authorize(ctx, tx, fileID, callerID, LevelOwner); err != nil {
			return err
		}
		var err error
		grants, err = tx.GrantsForFile(ctx, fileID)
		return err
	})
	if err != nil {
		return nil, accessError("list access", err)
	}

	out := make([]AccessEntry, len(grants))
	for i, g := range grants {
		out[i] = AccessEntry{FileID: g.FileID, UserID: g.UserID, Username: g.Username}
	}
	return out, nil
}
