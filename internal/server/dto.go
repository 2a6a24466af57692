package server

import (
	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/engine"
)

// Request payloads

type CreateBrandRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type UpdateBrandRequest struct {
	Status string `json:"status,omitempty" enum:"active,paused,archived"`
}

type CreateCalendarRequest struct {
	Year  int `json:"year"`
	Month int `json:"month" minimum:"1" maximum:"12"`
}

type CreateScopeRequest struct {
	ContentType string `json:"content_type"`
	Quantity    int    `json:"quantity" minimum:"0"`
}

type UpdateScopeRequest struct {
	Quantity    *int    `json:"quantity,omitempty" minimum:"0"`
	Completed   *int    `json:"completed,omitempty" minimum:"0"`
	ContentType *string `json:"content_type,omitempty"`
}

type CreateTaskRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	ContentType string  `json:"content_type"`
	Status      *string `json:"status,omitempty" enum:"todo,in_progress,completed"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"todo,in_progress,completed"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high"`
	ContentType *string `json:"content_type,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type ScheduleTaskRequest struct {
	PublishDate string `json:"publish_date" format:"date"`
}

type GenerateRequest struct {
	Scopes []engine.ScopeRequest `json:"scopes"`
}

type ImportConfigRequest struct {
	YAML string `json:"yaml"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type BrandResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,paused,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BrandConfigResponse struct {
	BrandID string         `json:"brand_id"`
	Config  *config.Config `json:"config"`
}

type CalendarResponse struct {
	ID        string `json:"id"`
	BrandID   string `json:"brand_id"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Status    string `json:"status" enum:"draft,active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ScopeResponse struct {
	ID          string `json:"id"`
	CalendarID  string `json:"calendar_id"`
	ContentType string `json:"content_type"`
	Quantity    int    `json:"quantity"`
	Completed   int    `json:"completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	CalendarID  string  `json:"calendar_id"`
	BrandID     string  `json:"brand_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"todo,in_progress,completed"`
	Priority    string  `json:"priority" enum:"low,medium,high"`
	ContentType string  `json:"content_type"`
	PublishDate *string `json:"publish_date,omitempty" format:"date-time"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type GenerateResponse struct {
	CreatedCount int            `json:"created_count"`
	Tasks        []TaskResponse `json:"tasks"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action"`
	BrandID    string `json:"brand_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func brandResponse(b domain.Brand) BrandResponse {
	return BrandResponse{ID: b.ID, Name: b.Name, Status: b.Status, CreatedAt: b.CreatedAt}
}

func calendarResponse(c domain.Calendar) CalendarResponse {
	return CalendarResponse{ID: c.ID, BrandID: c.BrandID, Year: c.Year, Month: c.Month, Status: c.Status, CreatedAt: c.CreatedAt}
}

func scopeResponse(s domain.Scope) ScopeResponse {
	return ScopeResponse{
		ID:          s.ID,
		CalendarID:  s.CalendarID,
		ContentType: s.ContentType,
		Quantity:    s.Quantity,
		Completed:   s.Completed,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		CalendarID:  t.CalendarID,
		BrandID:     t.BrandID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		ContentType: t.ContentType,
		PublishDate: t.PublishDate,
		DueDate:     t.DueDate,
		AssigneeID:  t.AssigneeID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Action:     e.Action,
		BrandID:    e.BrandID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func mapBrands(items []domain.Brand) []BrandResponse {
	res := make([]BrandResponse, 0, len(items))
	for _, b := range items {
		res = append(res, brandResponse(b))
	}
	return res
}

func mapCalendars(items []domain.Calendar) []CalendarResponse {
	res := make([]CalendarResponse, 0, len(items))
	for _, c := range items {
		res = append(res, calendarResponse(c))
	}
	return res
}

func mapScopes(items []domain.Scope) []ScopeResponse {
	res := make([]ScopeResponse, 0, len(items))
	for _, s := range items {
		res = append(res, scopeResponse(s))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}
