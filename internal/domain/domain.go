package domain

type Brand struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,paused,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Calendar struct {
	ID        string `json:"id"`
	BrandID   string `json:"brand_id"`
	Year      int    `json:"year"`
	Month     int    `json:"month" minimum:"1" maximum:"12"`
	Status    string `json:"status" enum:"draft,active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Scope declares how many tasks of one content type a calendar plans for.
// Quantity is a target, not a live count; the engine reconciles tasks to it.
type Scope struct {
	ID          string `json:"id"`
	CalendarID  string `json:"calendar_id"`
	ContentType string `json:"content_type"`
	Quantity    int    `json:"quantity" minimum:"0"`
	Completed   int    `json:"completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Task struct {
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

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action"`
	BrandID    string `json:"brand_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
