package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"planline/internal/config"
	"planline/internal/content"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
	"planline/internal/schedule"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Rand   *rand.Rand
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) rng() *rand.Rand {
	if e.Rand != nil {
		return e.Rand
	}
	return rand.New(rand.NewSource(e.now().UnixNano()))
}

// InitBrand creates a brand with its default config seeded.
func (e Engine) InitBrand(ctx context.Context, brandID, name, actorID string) (domain.Brand, error) {
	if brandID == "" {
		return domain.Brand{}, errors.New("brand id is required")
	}
	if name == "" {
		name = brandID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Brand{}, err
	}
	defer tx.Rollback()

	b := domain.Brand{
		ID:        brandID,
		Name:      name,
		Status:    "active",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertBrandTx(ctx, tx, b); err != nil {
		return domain.Brand{}, err
	}
	if err := e.Repo.UpsertBrandConfigTx(ctx, tx, b.ID, config.Default(b.ID, b.Name)); err != nil {
		return domain.Brand{}, fmt.Errorf("insert brand config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "brand.created", b.ID, "brand", b.ID, actorID, events.EventPayload{"name": b.Name, "status": b.Status}); err != nil {
		return domain.Brand{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Brand{}, err
	}
	return b, nil
}

// CreateCalendar creates the monthly calendar for a brand. A brand can hold at
// most one calendar per (year, month).
func (e Engine) CreateCalendar(ctx context.Context, brandID string, year, month int, actorID string) (domain.Calendar, error) {
	if brandID == "" {
		return domain.Calendar{}, errors.New("brand is required")
	}
	if month < 1 || month > 12 {
		return domain.Calendar{}, fmt.Errorf("invalid month %d", month)
	}
	if year < 1 {
		return domain.Calendar{}, fmt.Errorf("invalid year %d", year)
	}
	if _, err := e.Repo.GetBrand(ctx, brandID); err != nil {
		return domain.Calendar{}, err
	}
	c := domain.Calendar{
		ID:        uuid.New().String(),
		BrandID:   brandID,
		Year:      year,
		Month:     month,
		Status:    "draft",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Calendar{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCalendarTx(ctx, tx, c); err != nil {
		return domain.Calendar{}, err
	}
	if err := e.Events.Append(ctx, tx, "calendar.created", brandID, "calendar", c.ID, actorID, events.EventPayload{"year": year, "month": month}); err != nil {
		return domain.Calendar{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Calendar{}, err
	}
	return c, nil
}

// DeleteCalendar removes a calendar; its scopes and tasks cascade.
func (e Engine) DeleteCalendar(ctx context.Context, calendarID, actorID string) error {
	c, err := e.Repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCalendar(ctx, tx, calendarID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "calendar.deleted", c.BrandID, "calendar", c.ID, actorID, events.EventPayload{"year": c.Year, "month": c.Month}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateScope declares a content-type quota on a calendar. It does not create
// tasks; GenerateTasks and UpdateScope do.
func (e Engine) CreateScope(ctx context.Context, calendarID, contentType string, quantity int, actorID string) (domain.Scope, error) {
	contentType = content.Normalize(contentType)
	if contentType == "" {
		return domain.Scope{}, errors.New("content type is required")
	}
	if quantity < 0 {
		return domain.Scope{}, fmt.Errorf("invalid quantity %d", quantity)
	}
	c, err := e.Repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return domain.Scope{}, err
	}
	if err := e.ensureKnownContentType(contentType); err != nil {
		return domain.Scope{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	s := domain.Scope{
		ID:          uuid.New().String(),
		CalendarID:  calendarID,
		ContentType: contentType,
		Quantity:    quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Scope{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertScope(ctx, tx, s); err != nil {
		return domain.Scope{}, err
	}
	if err := e.Events.Append(ctx, tx, "scope.created", c.BrandID, "scope", s.ID, actorID, events.EventPayload{
		"content_type": s.ContentType,
		"quantity":     s.Quantity,
	}); err != nil {
		return domain.Scope{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Scope{}, err
	}
	return s, nil
}

// DeleteScope removes the quota row only; existing tasks stay.
func (e Engine) DeleteScope(ctx context.Context, scopeID, actorID string) error {
	s, err := e.Repo.GetScope(ctx, scopeID)
	if err != nil {
		return err
	}
	c, err := e.Repo.GetCalendar(ctx, s.CalendarID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteScope(ctx, tx, scopeID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "scope.deleted", c.BrandID, "scope", s.ID, actorID, events.EventPayload{"content_type": s.ContentType}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ensureKnownContentType(contentType string) error {
	if e.Config == nil {
		return nil
	}
	if !e.Config.KnownContentType(contentType) {
		return fmt.Errorf("invalid content type %s: not in catalog", contentType)
	}
	return nil
}

func (e Engine) defaultPriority() string {
	if e.Config != nil {
		return e.Config.DefaultPriority()
	}
	return domain.PriorityMedium
}

func (e Engine) dueDateOffset() int {
	if e.Config != nil {
		return e.Config.DueDateOffset()
	}
	return 2
}

func (e Engine) autoSchedule() bool {
	return e.Config != nil && e.Config.Scheduling.AutoSchedule
}

func validStatus(s string) bool {
	switch s {
	case domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusCompleted:
		return true
	}
	return false
}

func validPriority(p string) bool {
	switch p {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh:
		return true
	}
	return false
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	Status      string
	Priority    string
	ContentType string
	AssigneeID  string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.CalendarID == "" {
		return domain.Task{}, errors.New("calendar is required")
	}
	c, err := e.Repo.GetCalendar(ctx, opts.CalendarID)
	if err != nil {
		return domain.Task{}, err
	}
	opts.ContentType = content.Normalize(opts.ContentType)
	if opts.ContentType == "" {
		return domain.Task{}, errors.New("content type is required")
	}
	if err := e.ensureKnownContentType(opts.ContentType); err != nil {
		return domain.Task{}, err
	}
	if opts.Status == "" {
		opts.Status = domain.TaskStatusTodo
	}
	if !validStatus(opts.Status) {
		return domain.Task{}, fmt.Errorf("invalid status %s", opts.Status)
	}
	if opts.Priority == "" {
		opts.Priority = e.defaultPriority()
	}
	if !validPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("invalid priority %s", opts.Priority)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          id,
		CalendarID:  opts.CalendarID,
		BrandID:     c.BrandID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      opts.Status,
		Priority:    opts.Priority,
		ContentType: opts.ContentType,
		AssigneeID:  optionalString(opts.AssigneeID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.BrandID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates. Nil pointers leave the field
// untouched.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Status      string
	Priority    string
	ContentType string
	Assign      *string
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	if opts.Title != nil {
		if *opts.Title == "" {
			return t, errors.New("title is required")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Status != "" {
		if !validStatus(opts.Status) {
			return t, fmt.Errorf("invalid status %s", opts.Status)
		}
		t.Status = opts.Status
	}
	if opts.Priority != "" {
		if !validPriority(opts.Priority) {
			return t, fmt.Errorf("invalid priority %s", opts.Priority)
		}
		t.Priority = opts.Priority
	}
	if opts.ContentType != "" {
		ct := content.Normalize(opts.ContentType)
		if err := e.ensureKnownContentType(ct); err != nil {
			return t, err
		}
		t.ContentType = ct
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			t.AssigneeID = nil
		} else {
			t.AssigneeID = opts.Assign
		}
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.BrandID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.BrandID, "task", t.ID, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// AssignTaskDate schedules a task onto a weekday. The due date is derived by
// walking the configured number of business days back from the publish date.
func (e Engine) AssignTaskDate(ctx context.Context, taskID string, publish time.Time, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if !schedule.IsWeekday(publish) {
		return t, fmt.Errorf("invalid publish date %s: falls on a weekend", publish.Format("2006-01-02"))
	}
	publishAt := schedule.Noon(publish)
	dueAt := schedule.DueDate(publishAt, e.dueDateOffset())
	pub := publishAt.Format(time.RFC3339)
	due := dueAt.Format(time.RFC3339)
	t.PublishDate = &pub
	t.DueDate = &due
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.scheduled", t.BrandID, "task", t.ID, actorID, events.EventPayload{
		"publish_date": pub,
		"due_date":     due,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// BrandStatus summarizes a brand for status output.
type BrandStatus struct {
	Brand      domain.Brand      `json:"brand"`
	Calendars  []domain.Calendar `json:"calendars,omitempty"`
	TaskCounts map[string]int    `json:"task_counts"`
}

func (e Engine) Status(ctx context.Context, brandID string) (BrandStatus, error) {
	b, err := e.Repo.GetBrand(ctx, brandID)
	if err != nil {
		return BrandStatus{}, err
	}
	calendars, err := e.Repo.ListCalendars(ctx, brandID)
	if err != nil {
		return BrandStatus{}, err
	}
	counts, err := e.Repo.CountTasksByStatus(ctx, brandID)
	if err != nil {
		return BrandStatus{}, err
	}
	return BrandStatus{Brand: b, Calendars: calendars, TaskCounts: counts}, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
