package session

import (
	"context"
	"fmt"

	"akwaba.app/internal/kyc"
)

// Tracker binds a Cache to one (subject, role) pair.
type Tracker struct {
	cache   Cache
	subject string
	role    kyc.Role
}

func NewTracker(cache Cache, subject string, role kyc.Role) *Tracker {
	return &Tracker{cache: cache, subject: subject, role: role}
}

func (t *Tracker) Role() kyc.Role { return t.role }

func (t *Tracker) key() string {
	return fmt.Sprintf("session:%s:%s", t.subject, t.role)
}

// View returns the cached snapshot. Cache errors and misses read as NONE.
func (t *Tracker) View(ctx context.Context) Snapshot {
	raw, ok, err := t.cache.Load(ctx, t.key())
	if err != nil || !ok {
		return None(t.role)
	}
	s := Hydrate(raw)
	if s.Role != "" && s.Role != t.role {
		return None(t.role)
	}
	s.Role = t.role
	return s
}

// Apply runs an optimistic transition and persists the result.
func (t *Tracker) Apply(ctx context.Context, ev kyc.Event) (Snapshot, error) {
	cur := t.View(ctx)
	next, err := ApplyLocalTransition(cur, ev)
	if err != nil {
		return cur, err
	}
	return next, t.put(ctx, next)
}

// Reconcile overwrites the cached snapshot with the server's.
func (t *Tracker) Reconcile(ctx context.Context, server Snapshot) (Snapshot, error) {
	merged := Reconcile(t.View(ctx), server)
	merged.Role = t.role
	return merged, t.put(ctx, merged)
}

// Invalidate drops the cached snapshot, e.g. on sign-in or sign-out.
func (t *Tracker) Invalidate(ctx context.Context) error {
	return t.cache.Invalidate(ctx, t.key())
}

func (t *Tracker) put(ctx context.Context, s Snapshot) error {
	raw, err := Encode(s)
	if err != nil {
		return err
	}
	return t.cache.Store(ctx, t.key(), raw)
}
