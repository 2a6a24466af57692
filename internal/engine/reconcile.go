package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"planline/internal/content"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
	"planline/internal/schedule"
)

// ScopeUpdateOptions carries the requested scope changes. Nil pointers leave
// the field untouched.
type ScopeUpdateOptions struct {
	ID          string
	Quantity    *int
	Completed   *int
	ContentType *string
	ActorID     string
}

// UpdateScope changes a scope and reconciles the calendar's tasks to it inside
// one transaction: a content-type change relabels every task of the old type,
// then a quantity change creates or deletes tasks to close the gap. Either the
// whole reconciliation commits or none of it does.
func (e Engine) UpdateScope(ctx context.Context, opts ScopeUpdateOptions) (domain.Scope, error) {
	s, err := e.Repo.GetScope(ctx, opts.ID)
	if err != nil {
		return s, err
	}
	c, err := e.Repo.GetCalendar(ctx, s.CalendarID)
	if err != nil {
		return s, err
	}
	b, err := e.Repo.GetBrand(ctx, c.BrandID)
	if err != nil {
		return s, err
	}

	oldType := s.ContentType
	oldQuantity := s.Quantity
	newType := oldType
	if opts.ContentType != nil {
		newType = content.Normalize(*opts.ContentType)
		if newType == "" {
			return s, errors.New("content type is required")
		}
		if err := e.ensureKnownContentType(newType); err != nil {
			return s, err
		}
	}
	typeChanging := newType != oldType
	newQuantity := oldQuantity
	if opts.Quantity != nil {
		if *opts.Quantity < 0 {
			return s, fmt.Errorf("invalid quantity %d", *opts.Quantity)
		}
		newQuantity = *opts.Quantity
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	s.ContentType = newType
	s.Quantity = newQuantity
	if opts.Completed != nil {
		s.Completed = *opts.Completed
	}
	s.UpdatedAt = now
	if err := e.Repo.UpdateScope(ctx, tx, s); err != nil {
		// A second scope with the target type already exists on this calendar.
		return s, err
	}

	if typeChanging {
		if err := e.migrateTaskType(ctx, tx, c.ID, oldType, newType, now); err != nil {
			return s, err
		}
	}

	diff := newQuantity - oldQuantity
	var created []domain.Task
	var deleted []string
	switch {
	case diff > 0:
		created, err = e.createScopedTasks(ctx, tx, c, b, newType, diff, now)
		if err != nil {
			return s, err
		}
	case diff < 0:
		deleted, err = e.deleteExcessTasks(ctx, tx, c.ID, newType, -diff)
		if err != nil {
			return s, err
		}
	}

	if err := e.Events.Append(ctx, tx, "scope.updated", c.BrandID, "scope", s.ID, opts.ActorID, events.EventPayload{
		"old_content_type": oldType,
		"new_content_type": newType,
		"old_quantity":     oldQuantity,
		"new_quantity":     newQuantity,
		"created":          len(created),
		"deleted":          len(deleted),
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// migrateTaskType relabels every task of the old type on the calendar. Titles
// and descriptions get the old label rewritten case-insensitively.
func (e Engine) migrateTaskType(ctx context.Context, tx *sql.Tx, calendarID, oldType, newType, now string) error {
	tasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{CalendarID: calendarID, ContentType: oldType})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		t.Title = content.Rewrite(t.Title, oldType, newType)
		t.Description = content.Rewrite(t.Description, oldType, newType)
		t.ContentType = newType
		t.UpdatedAt = now
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

// createScopedTasks creates n tasks of the given type, numbering after the
// tasks already on the calendar. When auto-scheduling is on, each task gets a
// random weekday publish date within the calendar month; a shortfall of
// weekdays leaves the remainder unscheduled.
func (e Engine) createScopedTasks(ctx context.Context, tx *sql.Tx, c domain.Calendar, b domain.Brand, contentType string, n int, now string) ([]domain.Task, error) {
	existing, err := e.Repo.CountTasksByType(ctx, tx, c.ID, contentType)
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	if e.autoSchedule() {
		first, last := schedule.MonthRange(c.Year, c.Month)
		dates = schedule.WeekdayDates(e.rng(), first, last, n)
	}
	created := make([]domain.Task, 0, n)
	for i := 0; i < n; i++ {
		t := domain.Task{
			ID:          uuid.New().String(),
			CalendarID:  c.ID,
			BrandID:     b.ID,
			Title:       content.TaskTitle(contentType, existing+i+1),
			Description: content.TaskDescription(contentType, b.Name),
			Status:      domain.TaskStatusTodo,
			Priority:    e.defaultPriority(),
			ContentType: contentType,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if i < len(dates) {
			pub := dates[i].Format(time.RFC3339)
			due := schedule.DueDate(dates[i], e.dueDateOffset()).Format(time.RFC3339)
			t.PublishDate = &pub
			t.DueDate = &due
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	return created, nil
}

var statusScore = map[string]int{
	domain.TaskStatusTodo:       2,
	domain.TaskStatusInProgress: 1,
	domain.TaskStatusCompleted:  0,
}

// deleteExcessTasks removes up to n tasks of the given type, preferring the
// least-started work: todo before in_progress before completed, and within a
// status the latest-scheduled, newest task first.
func (e Engine) deleteExcessTasks(ctx context.Context, tx *sql.Tx, calendarID, contentType string, n int) ([]string, error) {
	tasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{CalendarID: calendarID, ContentType: contentType})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		pi, pj := "", ""
		if tasks[i].PublishDate != nil {
			pi = *tasks[i].PublishDate
		}
		if tasks[j].PublishDate != nil {
			pj = *tasks[j].PublishDate
		}
		if pi != pj {
			return pi > pj
		}
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt > tasks[j].CreatedAt
		}
		return tasks[i].ID > tasks[j].ID
	})
	// Within the latest-first order, least-started work goes first.
	sort.SliceStable(tasks, func(i, j int) bool {
		return statusScore[tasks[i].Status] > statusScore[tasks[j].Status]
	})
	if n > len(tasks) {
		n = len(tasks)
	}
	deleted := make([]string, 0, n)
	for _, t := range tasks[:n] {
		if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
			return nil, err
		}
		deleted = append(deleted, t.ID)
	}
	return deleted, nil
}

// ScopeRequest is one entry of a bulk generation request.
type ScopeRequest struct {
	ContentType string `json:"content_type"`
	Quantity    int    `json:"quantity" minimum:"0"`
}

// GenerateResult reports what a bulk generation created.
type GenerateResult struct {
	Created      []domain.Task `json:"tasks"`
	CreatedCount int           `json:"created_count"`
}

// GenerateTasks is the additive bulk path: for each requested scope it creates
// only the tasks missing to reach the requested quantity and records the quota
// on the scope row. Requests already satisfied are skipped entirely; nothing is
// ever deleted here.
func (e Engine) GenerateTasks(ctx context.Context, calendarID string, scopes []ScopeRequest, actorID string) (GenerateResult, error) {
	var res GenerateResult
	if len(scopes) == 0 {
		return res, errors.New("scopes list is required")
	}
	c, err := e.Repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return res, err
	}
	b, err := e.Repo.GetBrand(ctx, c.BrandID)
	if err != nil {
		return res, err
	}
	for i := range scopes {
		scopes[i].ContentType = content.Normalize(scopes[i].ContentType)
		if scopes[i].ContentType == "" {
			return res, fmt.Errorf("scope %d: content type is required", i)
		}
		if scopes[i].Quantity < 0 {
			return res, fmt.Errorf("scope %d: invalid quantity %d", i, scopes[i].Quantity)
		}
		if err := e.ensureKnownContentType(scopes[i].ContentType); err != nil {
			return res, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	for _, req := range scopes {
		existing, err := e.Repo.CountTasksByType(ctx, tx, c.ID, req.ContentType)
		if err != nil {
			return res, err
		}
		toCreate := req.Quantity - existing
		if toCreate <= 0 {
			continue
		}
		if err := e.upsertScopeQuantity(ctx, tx, c.ID, req.ContentType, req.Quantity, now); err != nil {
			return res, err
		}
		created, err := e.createScopedTasks(ctx, tx, c, b, req.ContentType, toCreate, now)
		if err != nil {
			return res, err
		}
		res.Created = append(res.Created, created...)
	}
	res.CreatedCount = len(res.Created)

	if err := e.Events.Append(ctx, tx, "tasks.generated", c.BrandID, "calendar", c.ID, actorID, events.EventPayload{
		"created_count": res.CreatedCount,
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

func (e Engine) upsertScopeQuantity(ctx context.Context, tx *sql.Tx, calendarID, contentType string, quantity int, now string) error {
	s, err := e.Repo.GetScopeByType(ctx, tx, calendarID, contentType)
	if errors.Is(err, repo.ErrNotFound) {
		return e.Repo.InsertScope(ctx, tx, domain.Scope{
			ID:          uuid.New().String(),
			CalendarID:  calendarID,
			ContentType: contentType,
			Quantity:    quantity,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err != nil {
		return err
	}
	s.Quantity = quantity
	s.UpdatedAt = now
	return e.Repo.UpdateScope(ctx, tx, s)
}
