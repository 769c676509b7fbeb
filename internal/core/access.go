package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/store"
)

// Level is the access a caller needs on a file.
type Level int

const (
	// LevelReader is satisfied by the owner or by a grant.
	LevelReader Level = iota
	// LevelOwner is satisfied only by the owner.
	LevelOwner
)

func (l Level) String() string {
	if l == LevelOwner {
		return "owner"
	}
	return "reader"
}

// authorize loads the file and checks userID holds level on it. A missing
// file is ErrFileNotFound, insufficient access is ErrForbidden.
func authorize(ctx context.Context, tx store.Tx, fileID, userID uuid.UUID, level Level) (store.File, error) {
	file, err := tx.GetFile(ctx, fileID)
	if errors.Is(err, store.ErrNoRows) {
		return store.File{}, ErrFileNotFound
	}
	if err != nil {
		return store.File{}, fmt.Errorf("load file: %w", err)
	}

	if file.OwnerID == userID {
		return file, nil
	}
	if level == LevelOwner {
		return store.File{}, fmt.Errorf("%w: %s access required", ErrForbidden, level)
	}

	ok, err := tx.HasGrant(ctx, fileID, userID)
	if err != nil {
		return store.File{}, fmt.Errorf("check grant: %w", err)
	}
	if !ok {
		return store.File{}, ErrForbidden
	}
	return file, nil
}
