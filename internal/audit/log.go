// Package audit records who did what to a KYC case, one JSON line per event.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"akwaba.app/internal/auth"
	"akwaba.app/internal/obs"
)

// ErrNoEvent is returned for a blank event name.
var ErrNoEvent = errors.New("audit: event name is required")

type requestIDKey struct{}

// Entry is the shape of an audit line.
type Entry struct {
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// WithRequestID tags ctx so later audit lines carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id = strings.TrimSpace(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns "" when ctx carries no id.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewEntry stamps event with the request id and acting subject found in ctx.
// fields is copied.
func NewEntry(ctx context.Context, event string, fields map[string]any) Entry {
	e := Entry{
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		Type:      "audit",
		Event:     strings.TrimSpace(event),
		RequestID: RequestIDFromContext(ctx),
		Fields:    make(map[string]any, len(fields)),
	}
	if actor, ok := auth.SubjectFromContext(ctx); ok {
		e.ActorID = actor
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// LogEvent writes one audit line through the shared logger.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	e := NewEntry(ctx, event, fields)
	if e.Event == "" {
		return ErrNoEvent
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(line))
	return nil
}
