package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/logging"
	"github.com/JonMunkholm/csvshare/internal/store"
)

// DeleteFile removes the file with its cells and grants. Owner only.
func (s *Service) DeleteFile(ctx context.Context, fileID, callerID uuid.UUID) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx store.Tx) error {
		if _, err := authorize(ctx, tx, fileID, callerID, LevelOwner); err != nil {
			return err
		}
		var err error
		deleted, err = tx.DeleteFile(ctx, fileID)
		return err
	})
	if err != nil {
		return false, accessError("delete file", err)
	}

	logging.FromContext(ctx).Info("file deleted", "file_id", fileID)
	return deleted, nil
}

// GrantAccess gives granteeUsername read access to the file. Owner only.
// Reports false when the grantee already had access, including when the
// grantee is the owner.
func (s *Service) GrantAccess(ctx context.Context, fileID, callerID uuid.UUID, granteeUsername string) (bool, error) {
	var granted bool
	err := s.inTx(ctx, func(tx store.Tx) error {
		file, err := authorize(ctx, tx, fileID, callerID, LevelOwner)
		if err != nil {
			return err
		}
		grantee, err := lookupUser(ctx, tx, granteeUsername)
		if err != nil {
			return err
		}
		if grantee.ID == file.OwnerID {
			return nil
		}

		has, err := tx.HasGrant(ctx, fileID, grantee.ID)
		if err != nil {
			return fmt.Errorf("check grant: %w", err)
		}
		if has {
			return nil
		}
		if _, err := tx.CreateGrant(ctx, fileID, grantee.ID); err != nil {
			return fmt.Errorf("create grant: %w", err)
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, accessError("grant access", err)
	}

	if granted {
		logging.FromContext(ctx).Info("access granted", "file_id", fileID, "grantee", granteeUsername)
	}
	return granted, nil
}

// RevokeAccess removes granteeUsername's grants on the file. Owner only.
// Reports whether any grant was removed.
func (s *Service) RevokeAccess(ctx context.Context, fileID, callerID uuid.UUID, granteeUsername string) (bool, error) {
	var revoked bool
	err := s.inTx(ctx, func(tx store.Tx) error {
		if _, err := authorize(ctx, tx, fileID, callerID, LevelOwner); err != nil {
			return err
		}
		grantee, err := lookupUser(ctx, tx, granteeUsername)
		if err != nil {
			return err
		}
		revoked, err = tx.DeleteGrant(ctx, fileID, grantee.ID)
		if err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, accessError("revoke access", err)
	}

	if revoked {
		logging.FromContext(ctx).Info("access revoked", "file_id", fileID, "grantee", granteeUsername)
	}
	return revoked, nil
}

func lookupUser(ctx context.Context, tx store.Tx, username string) (store.User, error) {
	user, err := tx.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNoRows) {
		return store.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// accessError passes domain errors through unchanged and wraps the rest.
func accessError(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return err
	}
	return storeError(op, err)
}
