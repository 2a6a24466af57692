package planlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Planline HTTP API client.
type Client struct {
	BaseURL     string
	BrandID     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, brandID string) *Client {
	return &Client{
		BaseURL: baseURL,
		BrandID: brandID,
		Timeout: 10 * time.Second,
	}
}

// Calendar represents one month of production.
type Calendar struct {
	ID      string `json:"id"`
	BrandID string `json:"brand_id"`
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Status  string `json:"status"`
}

// Scope represents a content type quota on a calendar.
type Scope struct {
	ID          string `json:"id"`
	CalendarID  string `json:"calendar_id"`
	ContentType string `json:"content_type"`
	Quantity    int    `json:"quantity"`
	Completed   int    `json:"completed"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	CalendarID  string  `json:"calendar_id"`
	BrandID     string  `json:"brand_id"`
	Title       string  `json:"title"`
	ContentType string  `json:"content_type"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	PublishDate *string `json:"publish_date,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Action     string `json:"action"`
	BrandID    string `json:"brand_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// GenerateResult reports what a bulk generation created.
type GenerateResult struct {
	CreatedCount int    `json:"created_count"`
	Tasks        []Task `json:"tasks"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedTasks wraps task listings with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// CreateCalendar creates a monthly calendar for the brand.
func (c *Client) CreateCalendar(ctx context.Context, year, month int) (Calendar, error) {
	body := map[string]any{"year": year, "month": month}
	var resp Calendar
	err := c.do(ctx, http.MethodPost, c.brandPath("calendars"), body, &resp)
	return resp, err
}

// CreateTask creates a task on a calendar.
func (c *Client) CreateTask(ctx context.Context, calendarID, title, contentType string) (Task, error) {
	body := map[string]any{
		"title":        title,
		"content_type": contentType,
	}
	var resp Task
	endpoint := fmt.Sprintf("v0/calendars/%s/tasks", url.PathEscape(calendarID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ScheduleTask assigns a publish date (YYYY-MM-DD, weekdays only).
func (c *Client) ScheduleTask(ctx context.Context, taskID, publishDate string) (Task, error) {
	body := map[string]any{"publish_date": publishDate}
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s/schedule", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UpdateScope patches a scope; nil fields are left unchanged. The server
// reconciles tasks to match the new quota or type.
func (c *Client) UpdateScope(ctx context.Context, scopeID string, quantity *int, contentType *string) (Scope, error) {
	body := map[string]any{}
	if quantity != nil {
		body["quantity"] = *quantity
	}
	if contentType != nil {
		body["content_type"] = *contentType
	}
	var resp Scope
	endpoint := fmt.Sprintf("v0/scopes/%s", url.PathEscape(scopeID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// GenerateTasks bulk-creates the tasks missing to satisfy the given quotas.
func (c *Client) GenerateTasks(ctx context.Context, calendarID string, scopes map[string]int) (GenerateResult, error) {
	entries := make([]map[string]any, 0, len(scopes))
	for contentType, quantity := range scopes {
		entries = append(entries, map[string]any{"content_type": contentType, "quantity": quantity})
	}
	body := map[string]any{"scopes": entries}
	var resp GenerateResult
	endpoint := fmt.Sprintf("v0/calendars/%s/generate", url.PathEscape(calendarID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Tasks returns a page of tasks on a calendar.
func (c *Client) Tasks(ctx context.Context, calendarID string, limit int, cursor string) (PaginatedTasks, error) {
	endpoint := fmt.Sprintf("v0/calendars/%s/tasks", url.PathEscape(calendarID))
	endpoint = withPaging(endpoint, limit, cursor)
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := withPaging(c.brandPath("events"), limit, cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func withPaging(endpoint string, limit int, cursor string) string {
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) brandPath(p string) string {
	brand := url.PathEscape(c.BrandID)
	return fmt.Sprintf("v0/brands/%s/%s", brand, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
