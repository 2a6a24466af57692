package repo

import (
	"context"
	"database/sql"
	"strings"

	"planline/internal/domain"
)

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, publishDate, dueDate, assigneeID sql.NullString
	err := scan(&t.ID, &t.CalendarID, &t.BrandID, &t.Title, &description, &t.Status, &t.Priority, &t.ContentType, &publishDate, &dueDate, &assigneeID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if publishDate.Valid {
		t.PublishDate = &publishDate.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	return t, nil
}

const taskColumns = `id,calendar_id,brand_id,title,description,status,priority,content_type,publish_date,due_date,assignee_id,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.CalendarID, t.BrandID, t.Title, nullable(t.Description), t.Status, t.Priority, t.ContentType,
		nullableStringPtr(t.PublishDate), nullableStringPtr(t.DueDate), nullableStringPtr(t.AssigneeID),
		t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, content_type=?, publish_date=?, due_date=?, assignee_id=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority, t.ContentType,
		nullableStringPtr(t.PublishDate), nullableStringPtr(t.DueDate), nullableStringPtr(t.AssigneeID),
		t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	CalendarID      string
	BrandID         string
	Status          string
	ContentType     string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return r.listTasks(ctx, r.DB.QueryContext, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	return r.listTasks(ctx, tx.QueryContext, f)
}

func (r Repo) listTasks(ctx context.Context, query func(ctx context.Context, query string, args ...any) (*sql.Rows, error), f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.CalendarID != "" {
		clauses = append(clauses, "calendar_id=?")
		args = append(args, f.CalendarID)
	}
	if f.BrandID != "" {
		clauses = append(clauses, "brand_id=?")
		args = append(args, f.BrandID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ContentType != "" {
		clauses = append(clauses, "content_type=?")
		args = append(args, f.ContentType)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	q := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) CountTasksByType(ctx context.Context, tx *sql.Tx, calendarID, contentType string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE calendar_id=? AND content_type=?`, calendarID, contentType).Scan(&n)
	return n, err
}

func (r Repo) CountTasksByStatus(ctx context.Context, brandID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE brand_id=? GROUP BY status`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, nil
}

func (r Repo) CountCompletedByType(ctx context.Context, tx *sql.Tx, calendarID, contentType string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE calendar_id=? AND content_type=? AND status=?`, calendarID, contentType, domain.TaskStatusCompleted).Scan(&n)
	return n, err
}
