package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JonMunkholm/csvshare/internal/store"
)

// Row models. Tables are created from schema.sql, not by AutoMigrate.

type userRow struct {
	ID           uuid.UUID `gorm:"primaryKey"`
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r userRow) toUser() store.User {
	return store.User{ID: r.ID, Username: r.Username, PasswordHash: r.PasswordHash}
}

type fileRow struct {
	ID          uuid.UUID `gorm:"primaryKey"`
	Name        string
	OwnerID     uuid.UUID
	ColumnOrder string
	CreatedAt   time.Time
}

func (fileRow) TableName() string { return "files" }

func (r fileRow) toFile() store.File {
	return store.File{ID: r.ID, Name: r.Name, OwnerID: r.OwnerID, ColumnOrder: r.ColumnOrder, CreatedAt: r.CreatedAt}
}

type cellRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	FileID     uuid.UUID
	ColumnName string
	RowNumber  int
	Value      string
}

func (cellRow) TableName() string { return "cells" }

type grantRow struct {
	ID     uuid.UUID `gorm:"primaryKey"`
	FileID uuid.UUID
	UserID uuid.UUID
}

func (grantRow) TableName() string { return "file_access" }

// Tx is a store.Tx over a gorm transaction.
type Tx struct {
	db   *gorm.DB
	done bool
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) conn(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.db.Commit().Error; err != nil {
		return translateError(err)
	}
	t.done = true
	return nil
}

// Rollback aborts the transaction. It is a no-op once committed or rolled
// back.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.db.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// ----------------------------------------------------------------------------
// Users
// ----------------------------------------------------------------------------

func (t *Tx) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	row := userRow{ID: uuid.New(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	if err := t.conn(ctx).Create(&row).Error; err != nil {
		return store.User{}, translateError(err)
	}
	return row.toUser(), nil
}

func (t *Tx) GetUser(ctx context.Context, id uuid.UUID) (store.User, error) {
	var row userRow
	if err := t.conn(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return store.User{}, translateError(err)
	}
	return row.toUser(), nil
}

func (t *Tx) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	var row userRow
	if err := t.conn(ctx).Where("username = ?", username).Take(&row).Error; err != nil {
		return store.User{}, translateError(err)
	}
	return row.toUser(), nil
}

func (t *Tx) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	db := t.conn(ctx)
	owned := db.Model(&fileRow{}).Select("id").Where("owner_id = ?", id)

	steps := []struct {
		name string
		run  func() error
	}{
		{"grants held", func() error { return db.Where("user_id = ?", id).Delete(&grantRow{}).Error }},
		{"grants on owned files", func() error { return db.Where("file_id IN (?)", owned).Delete(&grantRow{}).Error }},
		{"cells of owned files", func() error { return db.Where("file_id IN (?)", owned).Delete(&cellRow{}).Error }},
		{"owned files", func() error { return db.Where("owner_id = ?", id).Delete(&fileRow{}).Error }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return false, fmt.Errorf("delete %s: %w", step.name, translateError(err))
		}
	}

	res := db.Where("id = ?", id).Delete(&userRow{})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ----------------------------------------------------------------------------
// Files
// ----------------------------------------------------------------------------

func (t *Tx) CreateFile(ctx context.Context, name string, ownerID uuid.UUID, columnOrder string) (store.File, error) {
	row := fileRow{ID: uuid.New(), Name: name, OwnerID: ownerID, ColumnOrder: columnOrder, CreatedAt: time.Now().UTC()}
	if err := t.conn(ctx).Create(&row).Error; err != nil {
		return store.File{}, translateError(err)
	}
	return row.toFile(), nil
}

func (t *Tx) GetFile(ctx context.Context, id uuid.UUID) (store.File, error) {
	var row fileRow
	if err := t.conn(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return store.File{}, translateError(err)
	}
	return row.toFile(), nil
}

func (t *Tx) DeleteFile(ctx context.Context, id uuid.UUID) (bool, error) {
	db := t.conn(ctx)
	if err := db.Where("file_id = ?", id).Delete(&grantRow{}).Error; err != nil {
		return false, fmt.Errorf("delete grants: %w", translateError(err))
	}
	if err := db.Where("file_id = ?", id).Delete(&cellRow{}).Error; err != nil {
		return false, fmt.Errorf("delete cells: %w", translateError(err))
	}
	res := db.Where("id = ?", id).Delete(&fileRow{})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (t *Tx) FilesVisibleTo(ctx context.Context, userID uuid.UUID) ([]store.File, error) {
	var rows []fileRow
	err := t.conn(ctx).
		Where("owner_id = ? OR EXISTS (SELECT 1 FROM file_access a WHERE a.file_id = files.id AND a.user_id = ?)", userID, userID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	files := make([]store.File, len(rows))
	for i, r := range rows {
		files[i] = r.toFile()
	}
	return files, nil
}

// ----------------------------------------------------------------------------
// Cells
// ----------------------------------------------------------------------------

func (t *Tx) CreateCells(ctx context.Context, cells []store.Cell) error {
	if len(cells) == 0 {
		return nil
	}

	rows := make([]cellRow, len(cells))
	for i, c := range cells {
		rows[i] = cellRow{FileID: c.FileID, ColumnName: c.ColumnName, RowNumber: c.RowNumber, Value: c.Value}
	}
	if err := t.conn(ctx).CreateInBatches(&rows, cellInsertBatch).Error; err != nil {
		return fmt.Errorf("insert cells: %w", translateError(err))
	}
	return nil
}

func (t *Tx) CellsForFile(ctx context.Context, fileID uuid.UUID, filters map[string]string) ([]store.Cell, error) {
	q := t.conn(ctx).
		Table("cells c").
		Select("c.column_name, c.row_number, c.value").
		Where("c.file_id = ?", fileID).
		Order("c.row_number, c.id")

	if len(filters) > 0 {
		args := []any{fileID}
		conds := make([]string, 0, len(filters))
		for _, col := range store.FilterColumns(filters) {
			conds = append(conds, `(column_name = ? AND casefold(value) LIKE casefold(?) ESCAPE '\')`)
			args = append(args, col, store.ContainsPattern(filters[col]))
		}
		args = append(args, len(filters))

		matching := fmt.Sprintf(`JOIN (
			SELECT row_number FROM cells
			WHERE file_id = ? AND (%s)
			GROUP BY row_number
			HAVING COUNT(DISTINCT column_name) = ?
		) m ON m.row_number = c.row_number`, strings.Join(conds, " OR "))
		q = q.Joins(matching, args...)
	}

	var rows []cellRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, translateError(err)
	}

	cells := make([]store.Cell, len(rows))
	for i, r := range rows {
		cells[i] = store.Cell{FileID: fileID, ColumnName: r.ColumnName, RowNumber: r.RowNumber, Value: r.Value}
	}
	return cells, nil
}

// ----------------------------------------------------------------------------
// Grants
// ----------------------------------------------------------------------------

func (t *Tx) CreateGrant(ctx context.Context, fileID, userID uuid.UUID) (store.Grant, error) {
	row := grantRow{ID: uuid.New(), FileID: fileID, UserID: userID}
	if err := t.conn(ctx).Create(&row).Error; err != nil {
		return store.Grant{}, translateError(err)
	}
	return store.Grant{ID: row.ID, FileID: row.FileID, UserID: row.UserID}, nil
}

func (t *Tx) HasGrant(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	var n int64
	err := t.conn(ctx).Model(&grantRow{}).
		Where("file_id = ? AND user_id = ?", fileID, userID).
		Limit(1).
		Count(&n).Error
	return n > 0, translateError(err)
}

func (t *Tx) DeleteGrant(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	res := t.conn(ctx).Where("file_id = ? AND user_id = ?", fileID, userID).Delete(&grantRow{})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (t *Tx) GrantsForFile(ctx context.Context, fileID uuid.UUID) ([]store.GrantedUser, error) {
	var rows []struct {
		UserID   uuid.UUID
		Username string
	}
	err := t.conn(ctx).
		Table("file_access a").
		Distinct("a.user_id", "u.username").
		Joins("JOIN users u ON u.id = a.user_id").
		Where("a.file_id = ?", fileID).
		Order("u.username").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	out := make([]store.GrantedUser, len(rows))
	for i, r := range rows {
		out[i] = store.GrantedUser{FileID: fileID, UserID: r.UserID, Username: r.Username}
	}
	return out, nil
}
