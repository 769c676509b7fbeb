package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/auth"
	"github.com/JonMunkholm/csvshare/internal/config"
	"github.com/JonMunkholm/csvshare/internal/logging"
	"github.com/JonMunkholm/csvshare/internal/store"
)

// DefaultUploadTimeout bounds a single upload when none is configured.
const DefaultUploadTimeout = 10 * time.Minute

// Service provides the business operations of the CSV sharing service:
// accounts, uploads, table reads and access grants.
type Service struct {
	store  store.Store
	issuer *auth.Issuer
	hasher auth.Hasher

	ingest        ingester
	uploadLimiter *UploadLimiter
	uploadTimeout time.Duration

	// dummyHash is compared against when a login names an unknown user so
	// both failure paths cost one bcrypt comparison.
	dummyHash string
}

// NewService creates a Service over st configured by cfg.
func NewService(st store.Store, cfg *config.Config) (*Service, error) {
	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	timeout := cfg.Upload.Timeout
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}

	return &Service{
		store:  st,
		issuer: issuer,
		hasher: hasher,
		ingest: ingester{
			batchSize:  cfg.Upload.BatchSize,
			sniffBytes: cfg.Upload.SniffBytes,
			maxSize:    cfg.Upload.MaxFileSize,
		},
		uploadLimiter: NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		uploadTimeout: timeout,
		dummyHash:     dummy,
	}, nil
}

// inTx runs fn in a transaction that is committed when fn succeeds and
// rolled back otherwise.
func (s *Service) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// UploadLimiterStatus reports upload slot usage.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.uploadLimiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.uploadLimiter.WaitForDrain(ctx)
}

// Register creates an account and returns a token for it.
func (s *Service) Register(ctx context.Context, username, password string) (auth.Token, error) {
	if username == "" || password == "" {
		return auth.Token{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return auth.Token{}, fmt.Errorf("hash password: %w", err)
	}

	var user store.User
	err = s.inTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.CreateUser(ctx, username, hash)
		return err
	})
	if store.IsConstraint(err, store.UniqueViolation) {
		return auth.Token{}, ErrDuplicateUsername
	}
	if err != nil {
		return auth.Token{}, fmt.Errorf("create user: %w", err)
	}

	logging.FromContext(ctx).Info("user registered", "user_id", user.ID, "username", user.Username)
	return s.issuer.Issue(user.ID, user.Username)
}

// Login checks credentials and returns a fresh token. An unknown username
// and a wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (auth.Token, error) {
	var user store.User
	err := s.inTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUserByUsername(ctx, username)
		return err
	})
	if errors.Is(err, store.ErrNoRows) {
		_ = s.hasher.Compare(s.dummyHash, password)
		return auth.Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Token{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return auth.Token{}, ErrInvalidCredentials
		}
		return auth.Token{}, fmt.Errorf("compare password: %w", err)
	}
	return s.issuer.Issue(user.ID, user.Username)
}

// Authenticate verifies token and loads the user it names. A token for a
// deleted account is ErrInvalidToken.
func (s *Service) Authenticate(ctx context.Context, token string) (store.User, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return store.User{}, err
	}

	var user store.User
	err = s.inTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, claims.UserID)
		return err
	})
	if errors.Is(err, store.ErrNoRows) {
		return store.User{}, fmt.Errorf("%w: account no longer exists", auth.ErrInvalidToken)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// DeleteAccount removes the user, the files they own and every grant that
// references either. Reports whether the account existed.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx store.Tx) error {
		var err error
		deleted, err = tx.DeleteUser(ctx, userID)
		return err
	})
	if err != nil {
		return false, storeError("delete user", err)
	}
	if deleted {
		logging.FromContext(ctx).Info("account deleted", "user_id", userID)
	}
	return deleted, nil
}

// storeError wraps err, translating foreign key violations.
func storeError(op string, err error) error {
	if store.IsConstraint(err, store.ForeignKeyViolation) {
		return fmt.Errorf("%s: %w: %v", op, ErrReferentialIntegrity, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
