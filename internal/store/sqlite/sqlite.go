// Package sqlite implements store.Store on SQLite through gorm and the
// cgo-free glebarez driver. It backs local development and tests.
//
// Foreign keys are enforced per statement, so integrity violations surface
// at the call that causes them rather than at commit. Filters compare
// casefold(value) so matching ignores case beyond ASCII.
package sqlite

import (
	"context"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	glebarez "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JonMunkholm/csvshare/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// cellInsertBatch bounds the rows per INSERT statement, keeping the bound
// parameter count well under SQLite's variable limit.
const cellInsertBatch = 500

// Extended result codes of the constraint violations the store reports.
const (
	codeConstraintForeignKey = 787  // SQLITE_CONSTRAINT_FOREIGNKEY
	codeConstraintPrimaryKey = 1555 // SQLITE_CONSTRAINT_PRIMARYKEY
	codeConstraintUnique     = 2067 // SQLITE_CONSTRAINT_UNIQUE
)

// casefold lower-cases its text argument with Unicode rules. SQLite's own
// LIKE and lower() only fold ASCII.
func init() {
	gosqlite.MustRegisterDeterministicScalarFunction("casefold", 1,
		func(_ *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
}

// Store is a SQLite-backed store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at dsn. A "sqlite:" prefix is stripped; ":memory:"
// and "file:" URIs are passed through. Foreign keys are switched on for
// every connection.
func Open(dsn string) (*Store, error) {
	dsn = withPragmas(strings.TrimPrefix(dsn, "sqlite:"))

	db, err := gorm.Open(glebarez.Open(dsn), &gorm.Config{
		Logger: quietConstraints{logger.New(
			slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		)},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers, and an in-memory database lives only as
	// long as its one connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	return &Store{db: db}, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return &Tx{db: tx}, nil
}

// Ping verifies the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate applies the embedded schema statement by statement.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// quietConstraints drops constraint violations from gorm's error log.
// They are expected outcomes (a taken username, a vanished owner) that
// callers map to domain errors; slow queries are still reported.
type quietConstraints struct {
	logger.Interface
}

func (l quietConstraints) LogMode(level logger.LogLevel) logger.Interface {
	return quietConstraints{l.Interface.LogMode(level)}
}

func (l quietConstraints) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if _, ok := constraintKind(err); ok {
		err = nil
	}
	l.Interface.Trace(ctx, begin, fc, err)
}

// constraintKind classifies a driver error by its extended result code.
func constraintKind(err error) (store.ConstraintKind, bool) {
	var serr *gosqlite.Error
	if !errors.As(err, &serr) {
		return 0, false
	}
	switch serr.Code() {
	case codeConstraintUnique, codeConstraintPrimaryKey:
		return store.UniqueViolation, true
	case codeConstraintForeignKey:
		return store.ForeignKeyViolation, true
	}
	return 0, false
}

// translateError converts gorm and driver errors into store errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNoRows
	}
	if kind, ok := constraintKind(err); ok {
		return &store.ConstraintError{Kind: kind, Constraint: constraintName(err.Error()), Err: err}
	}
	return err
}

// constraintName extracts "users.username" from the driver message
// "constraint failed: UNIQUE constraint failed: users.username (2067)".
// Foreign key failures name no constraint.
func constraintName(msg string) string {
	for _, prefix := range []string{"UNIQUE constraint failed: ", "PRIMARY KEY constraint failed: "} {
		if _, after, ok := strings.Cut(msg, prefix); ok {
			name, _, _ := strings.Cut(after, " ")
			return name
		}
	}
	return ""
}
