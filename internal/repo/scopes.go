package repo

import (
	"context"
	"database/sql"

	"planline/internal/domain"
)

func scanScope(scan func(dest ...any) error) (domain.Scope, error) {
	var s domain.Scope
	err := scan(&s.ID, &s.CalendarID, &s.ContentType, &s.Quantity, &s.Completed, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertScope(ctx context.Context, tx *sql.Tx, s domain.Scope) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO scopes(id,calendar_id,content_type,quantity,completed,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.CalendarID, s.ContentType, s.Quantity, s.Completed, s.CreatedAt, s.UpdatedAt)
	return wrapConflict(err)
}

func (r Repo) UpdateScope(ctx context.Context, tx *sql.Tx, s domain.Scope) error {
	res, err := tx.ExecContext(ctx, `UPDATE scopes SET content_type=?, quantity=?, completed=?, updated_at=? WHERE id=?`,
		s.ContentType, s.Quantity, s.Completed, s.UpdatedAt, s.ID)
	if err != nil {
		return wrapConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetScope(ctx context.Context, id string) (domain.Scope, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,calendar_id,content_type,quantity,completed,created_at,updated_at FROM scopes WHERE id=?`, id)
	return scanScope(row.Scan)
}

func (r Repo) GetScopeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Scope, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,calendar_id,content_type,quantity,completed,created_at,updated_at FROM scopes WHERE id=?`, id)
	return scanScope(row.Scan)
}

func (r Repo) GetScopeByType(ctx context.Context, tx *sql.Tx, calendarID, contentType string) (domain.Scope, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,calendar_id,content_type,quantity,completed,created_at,updated_at FROM scopes WHERE calendar_id=? AND content_type=?`, calendarID, contentType)
	return scanScope(row.Scan)
}

func (r Repo) ListScopes(ctx context.Context, calendarID string) ([]domain.Scope, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,calendar_id,content_type,quantity,completed,created_at,updated_at FROM scopes WHERE calendar_id=? ORDER BY content_type ASC`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Scope
	for rows.Next() {
		s, err := scanScope(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) DeleteScope(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM scopes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetScopeCompleted recomputes the completed counter from the live task rows.
func (r Repo) SetScopeCompleted(ctx context.Context, tx *sql.Tx, scopeID string, completed int, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE scopes SET completed=?, updated_at=? WHERE id=?`, completed, updatedAt, scopeID)
	return err
}
