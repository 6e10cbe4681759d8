// Package hooks implements the single-event dispatch path: a fixed registry
// of hook bodies fronted by the idempotency, rate-limit, and cascade guards,
// feeding the dedup store.
//
// Hook bodies are resolved at registration time into a dispatch table keyed by
// hook id; firing never uses reflection or dynamic lookup beyond that table.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/engram/pkg/dedup"
	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/guard/cascade"
	"github.com/papercomputeco/engram/pkg/guard/idempotency"
	"github.com/papercomputeco/engram/pkg/guard/ratelimit"
)

// HookFunc is a registered hook body. It observes an agent action and returns
// the episodic event recording it. The ctx carries cascade state; a body that
// fires further hooks must pass it through.
type HookFunc func(ctx context.Context, inv Invocation) (*event.Event, error)

// Invocation carries the context a hook body is fired with.
type Invocation struct {
	HookID    string
	ProjectID string
	SessionID string

	// Context is the structured invocation metadata. It participates in the
	// idempotency fingerprint.
	Context map[string]any

	// IdempotencyKey optionally narrows duplicate suppression beyond
	// (hook, context).
	IdempotencyKey string
}

// FireStatus describes how a fire call concluded.
type FireStatus string

const (
	// StatusExecuted means the hook body ran and its event was newly recorded.
	StatusExecuted FireStatus = "executed"

	// StatusDisabled means the hook is registered but disabled; nothing ran.
	StatusDisabled FireStatus = "disabled"

	// StatusDuplicateCall means the call was suppressed by the idempotency
	// window; the result of the original execution is returned.
	StatusDuplicateCall FireStatus = "duplicate_call"

	// StatusAlreadyRecorded means the hook body ran but produced content
	// that was already durably recorded; the existing event id is returned.
	StatusAlreadyRecorded FireStatus = "already_recorded"
)

// FireResult is the outcome of one Fire call.
type FireResult struct {
	Status  FireStatus
	EventID string
}

// UnknownHookError is returned when firing a hook id that was never registered.
type UnknownHookError struct {
	HookID string
}

func (e UnknownHookError) Error() string {
	return fmt.Sprintf("unknown hook: %q", e.HookID)
}

// Stats is a snapshot of one hook's registry entry.
type Stats struct {
	HookID         string `json:"hook_id"`
	Enabled        bool   `json:"enabled"`
	ExecutionCount uint64 `json:"execution_count"`
	LastError      string `json:"last_error,omitempty"`
}

type registration struct {
	fn             HookFunc
	enabled        bool
	executionCount uint64
	lastError      error
}

// Config wires a Dispatcher's collaborators.
type Config struct {
	// Dedup is the two-level dedup store events are inserted through.
	Dedup *dedup.Store

	// Hasher computes canonical content hashes. Defaults to a fresh Hasher.
	Hasher *event.Hasher

	// Tracker suppresses duplicate calls. Defaults to a Tracker with the
	// stock window and history bound.
	Tracker *idempotency.Tracker

	// Limiter enforces per-hook frequency ceilings. Defaults to an
	// unlimited Limiter.
	Limiter *ratelimit.Limiter

	// Monitor guards hook chains. Defaults to a Monitor with stock limits.
	Monitor *cascade.Monitor

	// Publisher receives recorded-event notifications. Optional; publish
	// failures are logged and never fail a fire.
	Publisher eventstream.Publisher

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher owns the hook registry and the guarded single-event fire path.
// All process-wide mutable state (registry stats, rate windows, idempotency
// history, the hash cache) lives inside the Dispatcher and its collaborators;
// construct one and share it by reference.
type Dispatcher struct {
	mu       sync.RWMutex
	registry map[string]*registration

	sessionMu sync.Mutex
	sessionID string

	dedup     *dedup.Store
	hasher    *event.Hasher
	tracker   *idempotency.Tracker
	limiter   *ratelimit.Limiter
	monitor   *cascade.Monitor
	publisher eventstream.Publisher
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. Config.Dedup is required.
func NewDispatcher(c Config) (*Dispatcher, error) {
	if c.Dedup == nil {
		return nil, fmt.Errorf("dedup store is required")
	}

	if c.Hasher == nil {
		c.Hasher = event.NewHasher()
	}
	if c.Tracker == nil {
		c.Tracker = idempotency.NewTracker(0, 0)
	}
	if c.Limiter == nil {
		c.Limiter = ratelimit.NewLimiter(0, nil)
	}
	if c.Monitor == nil {
		c.Monitor = cascade.NewMonitor(0, 0)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Dispatcher{
		registry:  make(map[string]*registration),
		dedup:     c.Dedup,
		hasher:    c.Hasher,
		tracker:   c.Tracker,
		limiter:   c.Limiter,
		monitor:   c.Monitor,
		publisher: c.Publisher,
		logger:    c.Logger,
	}, nil
}

// Register adds a hook body to the dispatch table, enabled. Registering the
// same id twice is an error.
func (d *Dispatcher) Register(hookID string, fn HookFunc) error {
	if fn == nil {
		return fmt.Errorf("hook %q: nil hook func", hookID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.registry[hookID]; exists {
		return fmt.Errorf("hook %q already registered", hookID)
	}

	d.registry[hookID] = &registration{fn: fn, enabled: true}
	return nil
}

// Enable marks a registered hook as enabled.
func (d *Dispatcher) Enable(hookID string) error {
	return d.setEnabled(hookID, true)
}

// Disable marks a registered hook as disabled; firing it becomes a no-op.
func (d *Dispatcher) Disable(hookID string) error {
	return d.setEnabled(hookID, false)
}

func (d *Dispatcher) setEnabled(hookID string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, ok := d.registry[hookID]
	if !ok {
		return UnknownHookError{HookID: hookID}
	}

	reg.enabled = enabled
	return nil
}

// Stats returns a snapshot of a hook's registry entry.
func (d *Dispatcher) Stats(hookID string) (Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	reg, ok := d.registry[hookID]
	if !ok {
		return Stats{}, UnknownHookError{HookID: hookID}
	}

	s := Stats{
		HookID:         hookID,
		Enabled:        reg.enabled,
		ExecutionCount: reg.executionCount,
	}
	if reg.lastError != nil {
		s.LastError = reg.lastError.Error()
	}

	return s, nil
}

// Fire runs the guarded single-event path for one hook invocation:
// registry check, idempotency window, rate limit, cascade push (popped on
// every exit), implicit session start, hook body, dedup insert, stats.
//
// Guard violations surface as the guards' typed errors before any side effect
// runs. A content hash that already exists is not an error; the existing
// event id is returned with StatusAlreadyRecorded.
//
// If no session is active when a body needs one, the dispatcher starts a
// session implicitly. This is intentional: hooks observing a mid-session
// action must never be dropped because session bookkeeping lagged behind.
func (d *Dispatcher) Fire(ctx context.Context, hookID string, inv Invocation) (FireResult, error) {
	d.mu.RLock()
	reg, ok := d.registry[hookID]
	enabled := ok && reg.enabled
	d.mu.RUnlock()

	if !ok {
		return FireResult{}, UnknownHookError{HookID: hookID}
	}

	if !enabled {
		return FireResult{Status: StatusDisabled}, nil
	}

	if cached, dup := d.tracker.IsDuplicate(hookID, inv.Context, inv.IdempotencyKey); dup {
		res, _ := cached.(FireResult)
		res.Status = StatusDuplicateCall

		d.logger.Debug("duplicate call suppressed",
			"hook_id", hookID,
			"event_id", res.EventID,
		)
		return res, nil
	}

	if err := d.limiter.AllowExecution(hookID); err != nil {
		d.recordOutcome(hookID, err)
		return FireResult{}, err
	}

	ctx, err := d.monitor.Push(ctx, hookID)
	if err != nil {
		d.recordOutcome(hookID, err)
		return FireResult{}, err
	}
	defer d.monitor.Pop(ctx)

	inv.HookID = hookID
	if inv.SessionID == "" {
		inv.SessionID = d.ensureSession()
	}

	e, err := reg.fn(ctx, inv)
	if err != nil {
		d.recordOutcome(hookID, err)
		return FireResult{}, fmt.Errorf("hook %q failed: %w", hookID, err)
	}
	if e == nil {
		err := fmt.Errorf("hook %q produced no event", hookID)
		d.recordOutcome(hookID, err)
		return FireResult{}, err
	}

	if e.SessionID == "" {
		e.SessionID = inv.SessionID
	}
	if e.ProjectID == "" {
		e.ProjectID = inv.ProjectID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	hash, hashErr := d.hasher.Hash(e)
	if hashErr != nil {
		// Hashing failure is non-fatal: better to store un-deduplicated
		// than drop the event.
		d.logger.Warn("content hashing failed, event accepted un-deduplicated",
			"hook_id", hookID,
			"error", hashErr,
		)
	} else {
		e.ContentHash = hash
	}

	id, inserted, err := d.dedup.Insert(ctx, e)
	if err != nil {
		d.recordOutcome(hookID, err)
		return FireResult{}, fmt.Errorf("failed to record event: %w", err)
	}

	status := StatusExecuted
	if !inserted {
		status = StatusAlreadyRecorded
	}

	res := FireResult{Status: status, EventID: id}
	d.tracker.RecordExecution(hookID, inv.Context, inv.IdempotencyKey, res)
	d.recordOutcome(hookID, nil)

	if inserted {
		d.publishRecorded(ctx, hookID, e, id)
	}

	return res, nil
}

// recordOutcome updates the hook's registry stats after an attempt.
func (d *Dispatcher) recordOutcome(hookID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, ok := d.registry[hookID]
	if !ok {
		return
	}

	if err != nil {
		reg.lastError = err
		return
	}

	reg.executionCount++
	reg.lastError = nil
}

// ensureSession returns the active session id, starting one if none is active.
func (d *Dispatcher) ensureSession() string {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()

	if d.sessionID == "" {
		d.sessionID = uuid.NewString()
		d.logger.Info("session auto-started", "session_id", d.sessionID)
	}

	return d.sessionID
}

// StartSession begins a new session and returns its id, replacing any
// active one.
func (d *Dispatcher) StartSession() string {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()

	d.sessionID = uuid.NewString()
	return d.sessionID
}

// EndSession clears the active session. The next fire without an explicit
// session starts a fresh one.
func (d *Dispatcher) EndSession() {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()

	d.sessionID = ""
}

func (d *Dispatcher) publishRecorded(ctx context.Context, hookID string, e *event.Event, id string) {
	if d.publisher == nil {
		return
	}

	err := d.publisher.PublishRecorded(ctx, &eventstream.RecordedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeRecorded,
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.Source{
			ProjectID: e.ProjectID,
			SessionID: e.SessionID,
			HookID:    hookID,
		},
		EventID:     id,
		ContentHash: e.ContentHash,
	})
	if err != nil {
		d.logger.Warn("failed to publish recorded event",
			"hook_id", hookID,
			"event_id", id,
			"error", err,
		)
	}
}
