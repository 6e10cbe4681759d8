// Package idempotency implements the short-window anti-replay guard for hook
// dispatch. A repeated (hook, context, key) fingerprint inside the window is
// suppressed and answered with the cached result of the first execution.
//
// This is an anti-thrash guard, not permanent dedup: once the window elapses
// the same fingerprint may execute again. Permanent content-level dedup is the
// dedup store's job.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultWindow is the default duplicate-suppression window.
	DefaultWindow = 30 * time.Second

	// DefaultMaxEntries bounds the tracked history.
	DefaultMaxEntries = 1000
)

type record struct {
	lastExecution time.Time
	result        any
}

// Tracker suppresses duplicate hook invocations inside a sliding window.
// Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	window     time.Duration
	maxEntries int
	records    map[string]*record

	// now is swapped out by tests to control the clock.
	now func() time.Time
}

// NewTracker creates a Tracker. Non-positive arguments select the defaults.
func NewTracker(window time.Duration, maxEntries int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Tracker{
		window:     window,
		maxEntries: maxEntries,
		records:    make(map[string]*record),
		now:        time.Now,
	}
}

// IsDuplicate reports whether an execution with the same fingerprint happened
// within the window, returning the cached result of that execution.
func (t *Tracker) IsDuplicate(hookID string, hookCtx map[string]any, explicitKey string) (any, bool) {
	fp := fingerprint(hookID, hookCtx, explicitKey)

	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[fp]
	if !ok {
		return nil, false
	}

	if t.now().Sub(r.lastExecution) >= t.window {
		delete(t.records, fp)
		return nil, false
	}

	return r.result, true
}

// RecordExecution stores the execution timestamp and result for the
// fingerprint, refreshing the sliding TTL of an existing record.
func (t *Tracker) RecordExecution(hookID string, hookCtx map[string]any, explicitKey string, result any) {
	fp := fingerprint(hookID, hookCtx, explicitKey)

	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.records[fp]; ok {
		r.lastExecution = t.now()
		r.result = result
		return
	}

	if len(t.records) >= t.maxEntries {
		t.evictLocked()
	}

	t.records[fp] = &record{
		lastExecution: t.now(),
		result:        result,
	}
}

// evictLocked drops expired records, falling back to the oldest one when
// nothing has expired yet.
func (t *Tracker) evictLocked() {
	now := t.now()

	var (
		oldestKey string
		oldestAt  time.Time
		dropped   bool
	)

	for k, r := range t.records {
		if now.Sub(r.lastExecution) >= t.window {
			delete(t.records, k)
			dropped = true
			continue
		}
		if oldestKey == "" || r.lastExecution.Before(oldestAt) {
			oldestKey = k
			oldestAt = r.lastExecution
		}
	}

	if !dropped && oldestKey != "" {
		delete(t.records, oldestKey)
	}
}

// Len returns the number of tracked records. Used by tests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.records)
}

// fingerprint derives a stable key from hook id, context, and an optional
// explicit key. The context is canonicalized (RFC 8785) before hashing so
// map insertion order never changes the fingerprint. A context that fails to
// marshal degrades to a fingerprint over the hook id and explicit key alone,
// which only widens suppression for that hook rather than dropping calls.
func fingerprint(hookID string, hookCtx map[string]any, explicitKey string) string {
	data, err := json.Marshal(struct {
		HookID  string         `json:"hook_id"`
		Context map[string]any `json:"context"`
		Key     string         `json:"key"`
	}{
		HookID:  hookID,
		Context: hookCtx,
		Key:     explicitKey,
	})
	if err != nil {
		return fmt.Sprintf("%s\x00%s", hookID, explicitKey)
	}

	j := jsontext.Value(data)
	if err := j.Canonicalize(); err != nil {
		return fmt.Sprintf("%s\x00%s", hookID, explicitKey)
	}

	sum := sha256.Sum256(j)
	return hex.EncodeToString(sum[:])
}
