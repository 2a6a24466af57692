package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/repo"
	"planline/internal/schedule"
)

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Calendar domain.Calendar
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acme", "Acme")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	eng.Rand = rand.New(rand.NewSource(1))
	ctx := context.Background()
	if _, err := eng.InitBrand(ctx, "acme", "Acme", "tester"); err != nil {
		t.Fatalf("init brand: %v", err)
	}
	cal, err := eng.CreateCalendar(ctx, "acme", 2024, 3, "tester")
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Calendar: cal}
}

func (env testEnv) listByType(t *testing.T, contentType string) []domain.Task {
	t.Helper()
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{CalendarID: env.Calendar.ID, ContentType: contentType})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	return tasks
}

func TestCreateCalendarDuplicateMonth(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateCalendar(env.Ctx, "acme", 2024, 3, "tester")
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := env.Engine.CreateCalendar(env.Ctx, "acme", 2024, 13, "tester"); err == nil {
		t.Fatalf("expected invalid month error")
	}
}

func TestCreateScopeDuplicateType(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateScope(env.Ctx, env.Calendar.ID, "BLOG_POST", 3, "tester"); err != nil {
		t.Fatalf("create scope: %v", err)
	}
	_, err := env.Engine.CreateScope(env.Ctx, env.Calendar.ID, "BLOG_POST", 5, "tester")
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGenerateTasksNamesAndSkips(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{
		{ContentType: "BLOG_POST", Quantity: 3},
		{ContentType: "VIDEO", Quantity: 2},
	}, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.CreatedCount != 5 {
		t.Fatalf("expected 5 created, got %d", res.CreatedCount)
	}
	titles := map[string]bool{}
	for _, task := range res.Created {
		titles[task.Title] = true
		if task.Status != domain.TaskStatusTodo {
			t.Fatalf("expected todo status, got %s", task.Status)
		}
	}
	for _, want := range []string{"Blog post #1", "Blog post #2", "Blog post #3", "Video #1", "Video #2"} {
		if !titles[want] {
			t.Fatalf("missing title %q in %v", want, titles)
		}
	}

	// a second run with the same quantities is a no-op
	res, err = env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{
		{ContentType: "BLOG_POST", Quantity: 3},
	}, "tester")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if res.CreatedCount != 0 {
		t.Fatalf("expected additive skip, created %d", res.CreatedCount)
	}
	if got := len(env.listByType(t, "BLOG_POST")); got != 3 {
		t.Fatalf("expected 3 blog posts, got %d", got)
	}
}

func TestGenerateTasksValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, nil, "tester"); err == nil {
		t.Fatalf("expected error for empty scopes")
	}
	if _, err := env.Engine.GenerateTasks(env.Ctx, "missing", []engine.ScopeRequest{{ContentType: "VIDEO", Quantity: 1}}, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{{ContentType: "VIDEO", Quantity: -1}}, "tester"); err == nil {
		t.Fatalf("expected invalid quantity error")
	}
}

func TestUpdateScopeQuantityIncrease(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{{ContentType: "BLOG_POST", Quantity: 3}}, "tester"); err != nil {
		t.Fatal(err)
	}
	scopes, err := env.Engine.Repo.ListScopes(env.Ctx, env.Calendar.ID)
	if err != nil || len(scopes) != 1 {
		t.Fatalf("list scopes: %v (%d)", err, len(scopes))
	}
	five := 5
	updated, err := env.Engine.UpdateScope(env.Ctx, engine.ScopeUpdateOptions{ID: scopes[0].ID, Quantity: &five, ActorID: "tester"})
	if err != nil {
		t.Fatalf("update scope: %v", err)
	}
	if updated.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", updated.Quantity)
	}
	tasks := env.listByType(t, "BLOG_POST")
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	titles := map[string]bool{}
	for _, task := range tasks {
		titles[task.Title] = true
	}
	if !titles["Blog post #4"] || !titles["Blog post #5"] {
		t.Fatalf("expected numbering to continue, got %v", titles)
	}
}

func TestUpdateScopeQuantityDecreasePrefersTodo(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{{ContentType: "BLOG_POST", Quantity: 5}}, "tester"); err != nil {
		t.Fatal(err)
	}
	tasks := env.listByType(t, "BLOG_POST")
	// mark two as started and one as completed
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tasks[0].ID, Status: domain.TaskStatusInProgress, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tasks[1].ID, Status: domain.TaskStatusInProgress, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tasks[2].ID, Status: domain.TaskStatusCompleted, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}

	scopes, _ := env.Engine.Repo.ListScopes(env.Ctx, env.Calendar.ID)
	one := 1
	if _, err := env.Engine.UpdateScope(env.Ctx, engine.ScopeUpdateOptions{ID: scopes[0].ID, Quantity: &one, ActorID: "tester"}); err != nil {
		t.Fatalf("update scope: %v", err)
	}
	remaining := env.listByType(t, "BLOG_POST")
	if len(remaining) != 1 {
		t.Fatalf("expected 1 task left, got %d", len(remaining))
	}
	// the two untouched todo tasks go first, then one in_progress
	for _, task := range remaining {
		if task.Status == domain.TaskStatusTodo {
			t.Fatalf("todo task survived while started work was deleted")
		}
	}
}

func TestUpdateScopeTypeMigration(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{{ContentType: "BLOG_POST", Quantity: 3}}, "tester"); err != nil {
		t.Fatal(err)
	}
	scopes, _ := env.Engine.Repo.ListScopes(env.Ctx, env.Calendar.ID)
	video := "VIDEO"
	if _, err := env.Engine.UpdateScope(env.Ctx, engine.ScopeUpdateOptions{ID: scopes[0].ID, ContentType: &video, ActorID: "tester"}); err != nil {
		t.Fatalf("migrate type: %v", err)
	}
	if got := len(env.listByType(t, "BLOG_POST")); got != 0 {
		t.Fatalf("expected no blog posts left, got %d", got)
	}
	migrated := env.listByType(t, "VIDEO")
	if len(migrated) != 3 {
		t.Fatalf("expected 3 migrated tasks, got %d", len(migrated))
	}
	for _, task := range migrated {
		if !strings.HasPrefix(task.Title, "Video #") {
			t.Fatalf("title not rewritten: %q", task.Title)
		}
		if !strings.Contains(task.Description, "video") {
			t.Fatalf("description not rewritten: %q", task.Description)
		}
	}
}

func TestUpdateScopeTypeConflictRollsBack(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{
		{ContentType: "BLOG_POST", Quantity: 2},
		{ContentType: "VIDEO", Quantity: 1},
	}, "tester"); err != nil {
		t.Fatal(err)
	}
	scopes, _ := env.Engine.Repo.ListScopes(env.Ctx, env.Calendar.ID)
	var blogScope domain.Scope
	for _, s := range scopes {
		if s.ContentType == "BLOG_POST" {
			blogScope = s
		}
	}
	video := "VIDEO"
	_, err := env.Engine.UpdateScope(env.Ctx, engine.ScopeUpdateOptions{ID: blogScope.ID, ContentType: &video, ActorID: "tester"})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	// nothing migrated
	if got := len(env.listByType(t, "BLOG_POST")); got != 2 {
		t.Fatalf("expected blog posts untouched, got %d", got)
	}
}

func TestAssignTaskDate(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{{ContentType: "BLOG_POST", Quantity: 1}}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task := res.Created[0]

	// Saturday is rejected
	saturday := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	if _, err := env.Engine.AssignTaskDate(env.Ctx, task.ID, saturday, "tester"); err == nil {
		t.Fatalf("expected weekend rejection")
	}

	// Wednesday publish gives Monday due date with the default 2-day offset
	wednesday := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	scheduled, err := env.Engine.AssignTaskDate(env.Ctx, task.ID, wednesday, "tester")
	if err != nil {
		t.Fatalf("assign date: %v", err)
	}
	if scheduled.PublishDate == nil || scheduled.DueDate == nil {
		t.Fatalf("dates not set: %+v", scheduled)
	}
	pub, _ := time.Parse(time.RFC3339, *scheduled.PublishDate)
	due, _ := time.Parse(time.RFC3339, *scheduled.DueDate)
	if !pub.Equal(schedule.Noon(wednesday)) {
		t.Fatalf("publish not noon-normalized: %s", pub)
	}
	if due.Weekday() != time.Monday || due.Day() != 4 {
		t.Fatalf("expected Monday March 4 due date, got %s", due)
	}
}

func TestAutoScheduleAssignsWeekdayDates(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Scheduling.AutoSchedule = true
	res, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{{ContentType: "VIDEO", Quantity: 4}}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range res.Created {
		if task.PublishDate == nil || task.DueDate == nil {
			t.Fatalf("auto-schedule left task unscheduled: %+v", task)
		}
		pub, err := time.Parse(time.RFC3339, *task.PublishDate)
		if err != nil {
			t.Fatalf("parse publish date: %v", err)
		}
		if !schedule.IsWeekday(pub) {
			t.Fatalf("publish date on weekend: %s", pub)
		}
		if pub.Month() != time.March || pub.Year() != 2024 {
			t.Fatalf("publish date outside calendar month: %s", pub)
		}
		due, _ := time.Parse(time.RFC3339, *task.DueDate)
		if !due.Before(pub) {
			t.Fatalf("due date not before publish: %s vs %s", due, pub)
		}
	}
}

func TestScopeUpdateAuditEvent(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateTasks(env.Ctx, env.Calendar.ID, []engine.ScopeRequest{{ContentType: "BLOG_POST", Quantity: 1}}, "tester"); err != nil {
		t.Fatal(err)
	}
	scopes, _ := env.Engine.Repo.ListScopes(env.Ctx, env.Calendar.ID)
	three := 3
	if _, err := env.Engine.UpdateScope(env.Ctx, engine.ScopeUpdateOptions{ID: scopes[0].ID, Quantity: &three, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, "acme", "scope.updated", "", "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected scope.updated event, got %d", len(evts))
	}
	if evts[0].ActorID != "tester" {
		t.Fatalf("actor not recorded: %+v", evts[0])
	}
	if !strings.Contains(evts[0].Payload, `"new_quantity":3`) {
		t.Fatalf("payload missing quantity: %s", evts[0].Payload)
	}
}

func TestTaskCRUD(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		CalendarID:  env.Calendar.ID,
		Title:       "Launch teaser",
		ContentType: "social post",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ContentType != "SOCIAL_POST" {
		t.Fatalf("content type not normalized: %s", task.ContentType)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority, got %s", task.Priority)
	}
	assignee := "alex"
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: domain.TaskStatusInProgress, Assign: &assignee, ActorID: "tester"})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if task.AssigneeID == nil || *task.AssigneeID != "alex" {
		t.Fatalf("assignee not set: %+v", task)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "bogus", ActorID: "tester"}); err == nil {
		t.Fatalf("expected invalid status error")
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
