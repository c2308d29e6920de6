// Package engine implements the chore workflow, the points economy and
// parent administration on top of a family document store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/model"
)

// Config controls write behavior.
type Config struct {
	// ConflictRetries is the number of attempts a mutation gets when the
	// document changes underneath it. Zero writes without a version check,
	// so the last writer wins.
	ConflictRetries int
	// Location is the time zone used for date keys and periods.
	Location *time.Location
	// PINCost is the bcrypt cost for PIN hashes; zero means bcrypt.DefaultCost.
	PINCost int
}

type EventKind string

const (
	EventCelebrate    EventKind = "celebrate"
	EventLevelUp      EventKind = "level_up"
	EventTaskRejected EventKind = "task_rejected"
)

// Event is a transient signal for live clients. It is never stored.
type Event struct {
	Kind      EventKind      `json:"kind"`
	FamilyID  string         `json:"familyId"`
	ProfileID string         `json:"profileId"`
	Data      map[string]any `json:"data,omitempty"`
}

type Engine struct {
	store    docstore.Store
	cfg      Config
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	observer func(Event)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers fn to receive events after successful writes.
func WithObserver(fn func(Event)) Option {
	return func(e *Engine) { e.observer = fn }
}

func New(store docstore.Store, cfg Config, opts ...Option) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	e := &Engine{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Now returns the engine clock in the configured location.
func (e *Engine) Now() time.Time {
	return e.now().In(e.cfg.Location)
}

// Store exposes the underlying document store for subscribers.
func (e *Engine) Store() docstore.Store { return e.store }

// Family returns the current record, or ErrFamilyNotFound.
func (e *Engine) Family(ctx context.Context, familyID string) (*model.FamilyRecord, error) {
	snap, err := e.store.Get(ctx, familyID)
	if err != nil {
		e.logger.Error("failed to load family", "family_id", familyID, "error", err)
		return nil, fmt.Errorf("load family: %w", err)
	}
	if snap.Record == nil {
		return nil, ErrFamilyNotFound
	}
	return snap.Record, nil
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

// mutation computes the updates for one attempt from a fresh copy of the
// record. Returning no updates makes the operation a no-op. Side effects that
// must only happen once belong after mutate returns.
type mutation func(rec *model.FamilyRecord) ([]docstore.Update, error)

// mutate runs a read-modify-write against the family document. With
// ConflictRetries > 0 each write is conditional on the version it was
// computed from, and a conflicting write is recomputed from scratch.
func (e *Engine) mutate(ctx context.Context, familyID, op string, fn mutation) (bool, error) {
	attempts := max(e.cfg.ConflictRetries, 1)
	for attempt := 1; ; attempt++ {
		snap, err := e.store.Get(ctx, familyID)
		if err != nil {
			e.logger.Error("failed to load family", "op", op, "family_id", familyID, "error", err)
			return false, fmt.Errorf("%s: load family: %w", op, err)
		}
		if snap.Record == nil {
			return false, ErrFamilyNotFound
		}

		rec := *snap.Record
		updates, err := fn(&rec)
		if err != nil {
			return false, err
		}
		if len(updates) == 0 {
			return false, nil
		}

		p := docstore.Patch{Updates: updates}
		if e.cfg.ConflictRetries > 0 {
			p.IfVersion = snap.Version
		}
		_, err = e.store.Patch(ctx, familyID, p)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, docstore.ErrConflict) && attempt < attempts:
			e.logger.Debug("version conflict, retrying", "op", op, "family_id", familyID, "attempt", attempt)
			continue
		case errors.Is(err, docstore.ErrConflict):
			e.logger.Warn("giving up after version conflicts", "op", op, "family_id", familyID, "attempts", attempt)
			return false, fmt.Errorf("%s: %w", op, ErrConflict)
		case errors.Is(err, docstore.ErrNotFound):
			return false, ErrFamilyNotFound
		default:
			e.logger.Error("store write failed", "op", op, "family_id", familyID, "error", err)
			return false, fmt.Errorf("%s: %w", op, err)
		}
	}
}

func (e *Engine) logEntry(action, details string, points int) model.LogEntry {
	return model.LogEntry{
		ID:        e.newID(),
		Action:    action,
		Details:   details,
		Points:    points,
		Timestamp: e.Now(),
	}
}
