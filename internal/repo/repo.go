package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"planline/internal/config"
	"planline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// wrapConflict converts SQLite unique-constraint failures into ErrConflict so
// callers can map them without depending on driver error types.
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (r Repo) InsertBrand(ctx context.Context, b domain.Brand) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO brands(id,name,status,created_at) VALUES (?,?,?,?)`,
		b.ID, b.Name, b.Status, b.CreatedAt)
	return wrapConflict(err)
}

func (r Repo) InsertBrandTx(ctx context.Context, tx *sql.Tx, b domain.Brand) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO brands(id,name,status,created_at) VALUES (?,?,?,?)`,
		b.ID, b.Name, b.Status, b.CreatedAt)
	return wrapConflict(err)
}

func (r Repo) GetBrand(ctx context.Context, id string) (domain.Brand, error) {
	var b domain.Brand
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM brands WHERE id=?`, id).
		Scan(&b.ID, &b.Name, &b.Status, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) SingleBrand(ctx context.Context) (domain.Brand, error) {
	brands, err := r.ListBrands(ctx)
	if err != nil {
		return domain.Brand{}, err
	}
	if len(brands) == 0 {
		return domain.Brand{}, ErrNotFound
	}
	if len(brands) > 1 {
		return domain.Brand{}, fmt.Errorf("multiple brands exist; specify --brand")
	}
	return brands[0], nil
}

func (r Repo) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM brands ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Brand
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

func (r Repo) UpdateBrandStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE brands SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteBrand(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM brands WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertBrandConfig(ctx context.Context, brandID string, cfg *config.Config) error {
	return upsertBrandConfig(ctx, r.DB, nil, brandID, cfg)
}

func (r Repo) UpsertBrandConfigTx(ctx context.Context, tx *sql.Tx, brandID string, cfg *config.Config) error {
	return upsertBrandConfig(ctx, nil, tx, brandID, cfg)
}

func upsertBrandConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, brandID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Brand.ID = brandID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO brand_configs(brand_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(brand_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, brandID, string(payload), now, now)
	return err
}

func (r Repo) GetBrandConfig(ctx context.Context, brandID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM brand_configs WHERE brand_id=?`, brandID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Brand.ID == "" {
		cfg.Brand.ID = brandID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertCalendar(ctx context.Context, c domain.Calendar) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO calendars(id,brand_id,year,month,status,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.BrandID, c.Year, c.Month, c.Status, c.CreatedAt)
	return wrapConflict(err)
}

func (r Repo) InsertCalendarTx(ctx context.Context, tx *sql.Tx, c domain.Calendar) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO calendars(id,brand_id,year,month,status,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.BrandID, c.Year, c.Month, c.Status, c.CreatedAt)
	return wrapConflict(err)
}

func (r Repo) GetCalendar(ctx context.Context, id string) (domain.Calendar, error) {
	var c domain.Calendar
	err := r.DB.QueryRowContext(ctx, `SELECT id,brand_id,year,month,status,created_at FROM calendars WHERE id=?`, id).
		Scan(&c.ID, &c.BrandID, &c.Year, &c.Month, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetCalendarTx(ctx context.Context, tx *sql.Tx, id string) (domain.Calendar, error) {
	var c domain.Calendar
	err := tx.QueryRowContext(ctx, `SELECT id,brand_id,year,month,status,created_at FROM calendars WHERE id=?`, id).
		Scan(&c.ID, &c.BrandID, &c.Year, &c.Month, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetCalendarByMonth(ctx context.Context, brandID string, year, month int) (domain.Calendar, error) {
	var c domain.Calendar
	err := r.DB.QueryRowContext(ctx, `SELECT id,brand_id,year,month,status,created_at FROM calendars WHERE brand_id=? AND year=? AND month=?`, brandID, year, month).
		Scan(&c.ID, &c.BrandID, &c.Year, &c.Month, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCalendars(ctx context.Context, brandID string) ([]domain.Calendar, error) {
	clauses := []string{"1=1"}
	var args []any
	if brandID != "" {
		clauses = []string{"brand_id=?"}
		args = append(args, brandID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	rows, err := r.DB.QueryContext(ctx, `SELECT id,brand_id,year,month,status,created_at FROM calendars `+where+` ORDER BY year DESC, month DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Calendar
	for rows.Next() {
		var c domain.Calendar
		if err := rows.Scan(&c.ID, &c.BrandID, &c.Year, &c.Month, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func (r Repo) UpdateCalendarStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE calendars SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCalendar(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM calendars WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, brandID, action, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, brandID, action, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, brandID, action, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if brandID != "" {
		clauses = append(clauses, "brand_id=?")
		args = append(args, brandID)
	}
	if action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, action)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,action,brand_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, brandID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if brandID != "" {
		clauses = append(clauses, "brand_id=?")
		args = append(args, brandID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,action,brand_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var brandID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &brandID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if brandID.Valid {
			e.BrandID = brandID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

// LatestEventID returns the most recent event ID for a brand.
func (r Repo) LatestEventID(ctx context.Context, brandID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE brand_id=?`, brandID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
