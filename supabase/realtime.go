package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Change is one row-level change delivered over the realtime feed.
type Change struct {
	Event  string          // INSERT, UPDATE or DELETE
	Table  string
	Record json.RawMessage // the new row state; empty for DELETE
}

// ChangeHandler receives realtime changes. Handlers run on their own
// goroutine and must not block indefinitely.
type ChangeHandler func(Change)

// ChangesConfig selects the rows a subscription observes.
type ChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE or * (default)
	Schema string // default "public"
	Table  string
	Filter string // optional, e.g. "user_id=eq.<id>"
}

// Realtime maintains one websocket connection to the realtime endpoint and
// fans row changes out to table subscriptions.
type Realtime struct {
	url string

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[string][]ChangeHandler
	done     chan struct{}
	ref      int
}

// Realtime returns a realtime client for this project. Connect must be
// called before subscribing.
func (c *Client) Realtime() *Realtime {
	wsURL := c.baseURL
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[len("https"):]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[len("http"):]
	}
	return &Realtime{
		url:      wsURL + "/realtime/v1/websocket?apikey=" + c.apiKey + "&vsn=1.0.0",
		handlers: make(map[string][]ChangeHandler),
	}
}

// Connect dials the realtime endpoint and starts the read and heartbeat
// loops. The connection closes when ctx is cancelled.
func (r *Realtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("realtime dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop()
	go r.heartbeat()
	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-r.done:
		}
	}()
	return nil
}

// Close shuts the connection down.
func (r *Realtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	close(r.done)
	_ = r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := r.conn.Close()
	r.conn = nil
	return err
}

// Subscribe joins the channel for cfg and routes matching changes to
// handler. The returned release func leaves the channel.
func (r *Realtime) Subscribe(cfg ChangesConfig, handler ChangeHandler) (func(), error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("realtime: table is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	r.mu.Lock()
	if r.conn == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("realtime: not connected")
	}
	event := cfg.Event
	key := topic + ":" + event
	r.handlers[key] = append(r.handlers[key], handler)
	r.ref++
	joinRef := fmt.Sprintf("%d", r.ref)
	err := r.conn.WriteJSON(map[string]any{
		"topic":    topic,
		"event":    "phx_join",
		"payload":  map[string]any{},
		"ref":      joinRef,
		"join_ref": joinRef,
	})
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("realtime join: %w", err)
	}

	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, key)
		if r.conn != nil {
			r.ref++
			_ = r.conn.WriteJSON(map[string]any{
				"topic":    topic,
				"event":    "phx_leave",
				"payload":  map[string]any{},
				"ref":      fmt.Sprintf("%d", r.ref),
				"join_ref": joinRef,
			})
		}
	}
	return release, nil
}

type realtimeMessage struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload struct {
		Type   string          `json:"type"`
		Table  string          `json:"table"`
		Record json.RawMessage `json:"record"`
	} `json:"payload"`
}

func (r *Realtime) readLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		r.dispatch(msg)
	}
}

func (r *Realtime) dispatch(msg realtimeMessage) {
	eventType := msg.Event
	if msg.Payload.Type != "" {
		eventType = msg.Payload.Type
	}
	change := Change{Event: eventType, Table: msg.Payload.Table, Record: msg.Payload.Record}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range []string{msg.Topic + ":" + eventType, msg.Topic + ":*"} {
		for _, handler := range r.handlers[key] {
			go handler(change)
		}
	}
}

func (r *Realtime) heartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				r.ref++
				_ = r.conn.WriteJSON(map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     fmt.Sprintf("%d", r.ref),
				})
			}
			r.mu.Unlock()
		}
	}
}
