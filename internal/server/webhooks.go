package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookHTTPTimeout  = 5 * time.Second
	webhookBatchSize    = 100
)

// hookState tracks one configured webhook plus its delivery cursor.
// Cursors live in memory only; on restart delivery resumes from the
// latest event so hooks never get a replay of the whole log.
type hookState struct {
	cfg    config.WebhookConfig
	cursor int64
	seeded bool
}

type webhookDispatcher struct {
	engine engine.Engine
	brand  string
	client *http.Client

	mu    sync.Mutex
	hooks []*hookState
}

func startWebhookDispatcher(e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	brandID := strings.TrimSpace(e.Config.Brand.ID)
	if brandID == "" {
		return
	}
	d := &webhookDispatcher{
		engine: e,
		brand:  brandID,
		client: &http.Client{Timeout: webhookHTTPTimeout},
	}
	for _, hook := range e.Config.Webhooks {
		d.hooks = append(d.hooks, &hookState{cfg: hook})
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		for _, h := range d.hooks {
			if h.cfg.Enabled != nil && !*h.cfg.Enabled {
				continue
			}
			if strings.TrimSpace(h.cfg.URL) == "" {
				continue
			}
			d.drain(h)
		}
		<-ticker.C
	}
}

// drain delivers pending events for one hook, stopping at the first
// failure so the cursor only ever moves past delivered events.
func (d *webhookDispatcher) drain(h *hookState) {
	ctx := context.Background()
	cursor := d.seedCursor(ctx, h)
	events, err := d.engine.Repo.EventsAfter(ctx, webhookBatchSize, cursor, d.brand)
	if err != nil {
		log.Printf("webhook: fetch events failed: %v", err)
		return
	}
	for _, evt := range events {
		if !hookWants(h.cfg, evt.Action) {
			d.advance(h, evt.ID)
			continue
		}
		if err := d.deliver(ctx, h.cfg, evt); err != nil {
			log.Printf("webhook: deliver to %s failed: %v", h.cfg.URL, err)
			return
		}
		d.advance(h, evt.ID)
	}
}

func (d *webhookDispatcher) seedCursor(ctx context.Context, h *hookState) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.seeded {
		return h.cursor
	}
	cur, err := d.engine.Repo.LatestEventID(ctx, d.brand)
	if err != nil {
		log.Printf("webhook: init cursor failed: %v", err)
		cur = 0
	}
	h.cursor = cur
	h.seeded = true
	return cur
}

func (d *webhookDispatcher) advance(h *hookState, id int64) {
	d.mu.Lock()
	h.cursor = id
	h.seeded = true
	d.mu.Unlock()
}

// hookWants reports whether the hook subscribes to the action. An empty
// or blank-only subscription list means every action.
func hookWants(cfg config.WebhookConfig, action string) bool {
	matched := false
	any := true
	for _, want := range cfg.Events {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		any = false
		if want == action {
			matched = true
		}
	}
	return any || matched
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Action     string          `json:"action"`
	BrandID    string          `json:"brand_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (d *webhookDispatcher) deliver(ctx context.Context, cfg config.WebhookConfig, evt domain.Event) error {
	body := webhookEvent{
		ID:         evt.ID,
		Action:     evt.Action,
		BrandID:    evt.BrandID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    json.RawMessage([]byte("{}")),
	}
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			body.Payload = json.RawMessage([]byte(evt.Payload))
		} else {
			body.PayloadRaw = evt.Payload
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := d.client
	if cfg.TimeoutSeconds > 0 {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout != client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Planline-Event", evt.Action)
	req.Header.Set("X-Planline-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Planline-Brand", d.brand)
	if strings.TrimSpace(cfg.Secret) != "" {
		req.Header.Set("X-Planline-Secret", cfg.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
