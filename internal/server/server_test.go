package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/engine"
	"planline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acme", "Acme")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitBrand(context.Background(), cfg.Brand.ID, cfg.Brand.Name, "tester"); err != nil {
		t.Fatalf("init brand: %v", err)
	}
	if err := e.Repo.UpsertBrandConfig(context.Background(), cfg.Brand.ID, cfg); err != nil {
		t.Fatalf("seed brand config: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createCalendar(t *testing.T, srv *testServer, year, month int) CalendarResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/brands/acme/calendars", map[string]any{
		"year":  year,
		"month": month,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create calendar: %d %s", res.StatusCode, string(data))
	}
	var cal CalendarResponse
	if err := json.Unmarshal(data, &cal); err != nil {
		t.Fatalf("unmarshal calendar: %v", err)
	}
	return cal
}

func TestRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/brands", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}

	healthRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", healthRes.StatusCode)
	}
}

func TestDevLoginToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "alice",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected token")
	}

	listRes, listData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/brands", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("authorized list: %d %s", listRes.StatusCode, string(listData))
	}
}

func TestCalendarDuplicateMonthConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	createCalendar(t, srv, 2024, 3)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/brands/acme/calendars", map[string]any{
		"year":  2024,
		"month": 3,
	}, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "conflict" {
		t.Fatalf("expected conflict code, got %q", envelope.Error.Code)
	}
}

func TestGenerateAndReconcileScope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	cal := createCalendar(t, srv, 2024, 3)

	genRes, genData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/calendars/"+cal.ID+"/generate", map[string]any{
		"scopes": []map[string]any{
			{"content_type": "blog post", "quantity": 3},
		},
	}, actorHeader)
	if genRes.StatusCode != http.StatusCreated {
		t.Fatalf("generate: %d %s", genRes.StatusCode, string(genData))
	}
	var gen GenerateResponse
	if err := json.Unmarshal(genData, &gen); err != nil {
		t.Fatalf("unmarshal generate: %v", err)
	}
	if gen.CreatedCount != 3 {
		t.Fatalf("expected 3 created, got %d", gen.CreatedCount)
	}

	scopesRes, scopesData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/calendars/"+cal.ID+"/scopes", nil, actorHeader)
	if scopesRes.StatusCode != http.StatusOK {
		t.Fatalf("list scopes: %d %s", scopesRes.StatusCode, string(scopesData))
	}
	var scopes []ScopeResponse
	if err := json.Unmarshal(scopesData, &scopes); err != nil {
		t.Fatalf("unmarshal scopes: %v", err)
	}
	if len(scopes) != 1 || scopes[0].ContentType != "BLOG_POST" {
		t.Fatalf("unexpected scopes: %+v", scopes)
	}

	patchRes, patchData := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/scopes/"+scopes[0].ID, map[string]any{
		"quantity": 5,
	}, actorHeader)
	if patchRes.StatusCode != http.StatusOK {
		t.Fatalf("patch scope: %d %s", patchRes.StatusCode, string(patchData))
	}

	tasksRes, tasksData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/calendars/"+cal.ID+"/tasks", nil, actorHeader)
	if tasksRes.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", tasksRes.StatusCode, string(tasksData))
	}
	var page paginatedTasks
	if err := json.Unmarshal(tasksData, &page); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(page.Items) != 5 {
		t.Fatalf("expected 5 tasks after reconcile, got %d", len(page.Items))
	}
}

func TestScheduleTaskRejectsWeekend(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	cal := createCalendar(t, srv, 2024, 3)

	createRes, createData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/calendars/"+cal.ID+"/tasks", map[string]any{
		"title":        "Launch teaser",
		"content_type": "video",
	}, actorHeader)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", createRes.StatusCode, string(createData))
	}
	var task TaskResponse
	if err := json.Unmarshal(createData, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	// 2024-03-02 is a Saturday.
	weekendRes, weekendData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/schedule", map[string]any{
		"publish_date": "2024-03-02",
	}, actorHeader)
	if weekendRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for weekend, got %d %s", weekendRes.StatusCode, string(weekendData))
	}

	okRes, okData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/schedule", map[string]any{
		"publish_date": "2024-03-06",
	}, actorHeader)
	if okRes.StatusCode != http.StatusOK {
		t.Fatalf("schedule: %d %s", okRes.StatusCode, string(okData))
	}
	var scheduled TaskResponse
	if err := json.Unmarshal(okData, &scheduled); err != nil {
		t.Fatalf("unmarshal scheduled: %v", err)
	}
	if scheduled.PublishDate == nil || scheduled.DueDate == nil {
		t.Fatalf("expected publish and due dates, got %+v", scheduled)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/keys", map[string]any{
		"actor_id": "bot-1",
		"name":     "ci",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("expected plaintext key on create")
	}

	listRes, listData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/brands", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("api key auth: %d %s", listRes.StatusCode, string(listData))
	}

	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/brands", nil, map[string]string{
		"X-Api-Key": "plk_bogus",
	})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", badRes.StatusCode)
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	cal := createCalendar(t, srv, 2024, 4)

	genRes, genData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/calendars/"+cal.ID+"/generate", map[string]any{
		"scopes": []map[string]any{
			{"content_type": "newsletter", "quantity": 2},
		},
	}, actorHeader)
	if genRes.StatusCode != http.StatusCreated {
		t.Fatalf("generate: %d %s", genRes.StatusCode, string(genData))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/brands/acme/events?limit=2", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events: %d %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 events, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected next cursor")
	}

	nextRes, nextData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/brands/acme/events?limit=2&cursor="+page.NextCursor, nil, actorHeader)
	if nextRes.StatusCode != http.StatusOK {
		t.Fatalf("next page: %d %s", nextRes.StatusCode, string(nextData))
	}
	var next paginatedEvents
	if err := json.Unmarshal(nextData, &next); err != nil {
		t.Fatalf("unmarshal next page: %v", err)
	}
	for _, evt := range next.Items {
		for _, prev := range page.Items {
			if evt.ID == prev.ID {
				t.Fatalf("event %d repeated across pages", evt.ID)
			}
		}
	}
}
