package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/csvshare/internal/store"
)

// Tx is a store.Tx over a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

var _ store.Tx = (*Tx)(nil)

// Commit commits the transaction. Deferred constraint violations surface
// here as *store.ConstraintError.
func (t *Tx) Commit(ctx context.Context) error {
	return translateError(t.tx.Commit(ctx))
}

// Rollback aborts the transaction. It is a no-op once committed.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// ----------------------------------------------------------------------------
// Users
// ----------------------------------------------------------------------------

func (t *Tx) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	u := store.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`,
		u.ID, u.Username, u.PasswordHash)
	if err != nil {
		return store.User{}, translateError(err)
	}
	return u, nil
}

func (t *Tx) GetUser(ctx context.Context, id uuid.UUID) (store.User, error) {
	var u store.User
	err := t.tx.QueryRow(ctx,
		`SELECT id, username, password_hash FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		return store.User{}, translateError(err)
	}
	return u, nil
}

// GetUserByUsername may see more than one row before a deferred unique
// check fires; the oldest wins.
func (t *Tx) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	var u store.User
	err := t.tx.QueryRow(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1
		 ORDER BY created_at, id LIMIT 1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		return store.User{}, translateError(err)
	}
	return u, nil
}

func (t *Tx) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	steps := []struct {
		name string
		sql  string
	}{
		{"grants held", `DELETE FROM file_access WHERE user_id = $1`},
		{"grants on owned files", `DELETE FROM file_access WHERE file_id IN (SELECT id FROM files WHERE owner_id = $1)`},
		{"cells of owned files", `DELETE FROM cells WHERE file_id IN (SELECT id FROM files WHERE owner_id = $1)`},
		{"owned files", `DELETE FROM files WHERE owner_id = $1`},
	}
	for _, step := range steps {
		if _, err := t.tx.Exec(ctx, step.sql, id); err != nil {
			return false, fmt.Errorf("delete %s: %w", step.name, translateError(err))
		}
	}

	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ----------------------------------------------------------------------------
// Files
// ----------------------------------------------------------------------------

func (t *Tx) CreateFile(ctx context.Context, name string, ownerID uuid.UUID, columnOrder string) (store.File, error) {
	f := store.File{ID: uuid.New(), Name: name, OwnerID: ownerID, ColumnOrder: columnOrder}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO files (id, name, owner_id, column_order) VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		f.ID, f.Name, f.OwnerID, f.ColumnOrder,
	).Scan(&f.CreatedAt)
	if err != nil {
		return store.File{}, translateError(err)
	}
	return f, nil
}

func (t *Tx) GetFile(ctx context.Context, id uuid.UUID) (store.File, error) {
	var f store.File
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, owner_id, column_order, created_at FROM files WHERE id = $1`, id,
	).Scan(&f.ID, &f.Name, &f.OwnerID, &f.ColumnOrder, &f.CreatedAt)
	if err != nil {
		return store.File{}, translateError(err)
	}
	return f, nil
}

func (t *Tx) DeleteFile(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM file_access WHERE file_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete grants: %w", translateError(err))
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM cells WHERE file_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete cells: %w", translateError(err))
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *Tx) FilesVisibleTo(ctx context.Context, userID uuid.UUID) ([]store.File, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT f.id, f.name, f.owner_id, f.column_order, f.created_at
		 FROM files f
		 WHERE f.owner_id = $1
		    OR EXISTS (SELECT 1 FROM file_access a WHERE a.file_id = f.id AND a.user_id = $1)
		 ORDER BY f.created_at, f.id`, userID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var files []store.File
	for rows.Next() {
		var f store.File
		if err := rows.Scan(&f.ID, &f.Name, &f.OwnerID, &f.ColumnOrder, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, translateError(rows.Err())
}

// ----------------------------------------------------------------------------
// Cells
// ----------------------------------------------------------------------------

// CreateCells queues every insert on one pgx batch and sends it in a single
// round trip.
func (t *Tx) CreateCells(ctx context.Context, cells []store.Cell) error {
	if len(cells) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range cells {
		batch.Queue(
			`INSERT INTO cells (file_id, column_name, row_number, value) VALUES ($1, $2, $3, $4)`,
			c.FileID, c.ColumnName, c.RowNumber, c.Value)
	}

	br := t.tx.SendBatch(ctx, batch)
	for i := range cells {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert cell %d: %w", i, translateError(err))
		}
	}
	return translateError(br.Close())
}

func (t *Tx) CellsForFile(ctx context.Context, fileID uuid.UUID, filters map[string]string) ([]store.Cell, error) {
	query, args := cellsQuery(fileID, filters)

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var cells []store.Cell
	for rows.Next() {
		c := store.Cell{FileID: fileID}
		if err := rows.Scan(&c.ColumnName, &c.RowNumber, &c.Value); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, translateError(rows.Err())
}

// cellsQuery builds the cell scan. With filters, matching row numbers come
// from one grouped pass: a row qualifies when every filter column matched.
func cellsQuery(fileID uuid.UUID, filters map[string]string) (string, []any) {
	if len(filters) == 0 {
		return `SELECT column_name, row_number, value FROM cells
			WHERE file_id = $1 ORDER BY row_number, id`, []any{fileID}
	}

	args := []any{fileID}
	conds := make([]string, 0, len(filters))
	for _, col := range store.FilterColumns(filters) {
		args = append(args, col, store.ContainsPattern(filters[col]))
		conds = append(conds, fmt.Sprintf(`(column_name = $%d AND value ILIKE $%d ESCAPE '\')`, len(args)-1, len(args)))
	}
	args = append(args, len(filters))

	query := fmt.Sprintf(`SELECT c.column_name, c.row_number, c.value
		FROM cells c
		JOIN (
			SELECT row_number FROM cells
			WHERE file_id = $1 AND (%s)
			GROUP BY row_number
			HAVING COUNT(DISTINCT column_name) = $%d
		) m ON m.row_number = c.row_number
		WHERE c.file_id = $1
		ORDER BY c.row_number, c.id`, strings.Join(conds, " OR "), len(args))
	return query, args
}

// ----------------------------------------------------------------------------
// Grants
// ----------------------------------------------------------------------------

func (t *Tx) CreateGrant(ctx context.Context, fileID, userID uuid.UUID) (store.Grant, error) {
	g := store.Grant{ID: uuid.New(), FileID: fileID, UserID: userID}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO file_access (id, file_id, user_id) VALUES ($1, $2, $3)`,
		g.ID, g.FileID, g.UserID)
	if err != nil {
		return store.Grant{}, translateError(err)
	}
	return g, nil
}

func (t *Tx) HasGrant(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM file_access WHERE file_id = $1 AND user_id = $2)`,
		fileID, userID,
	).Scan(&ok)
	return ok, translateError(err)
}

func (t *Tx) DeleteGrant(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM file_access WHERE file_id = $1 AND user_id = $2`, fileID, userID)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *Tx) GrantsForFile(ctx context.Context, fileID uuid.UUID) ([]store.GrantedUser, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT DISTINCT a.user_id, u.username
		 FROM file_access a JOIN users u ON u.id = a.user_id
		 WHERE a.file_id = $1
		 ORDER BY u.username`, fileID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []store.GrantedUser
	for rows.Next() {
		g := store.GrantedUser{FileID: fileID}
		if err := rows.Scan(&g.UserID, &g.Username); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, translateError(rows.Err())
}
