// Package ratelimit enforces per-hook execution-frequency ceilings over fixed
// windows. Exceeding the ceiling is a typed failure surfaced to the caller,
// never a queue or a silent drop.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// DefaultWindow is the window length when none is configured.
const DefaultWindow = time.Minute

// ExceededError is returned when a hook has used up its window budget.
type ExceededError struct {
	HookID string
	Limit  int
	Window time.Duration
}

func (e ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for hook %q: %d per %s", e.HookID, e.Limit, e.Window)
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks fixed execution windows per hook id. Safe for concurrent use.
type Limiter struct {
	mu         sync.Mutex
	windowLen  time.Duration
	limits     map[string]int
	windows    map[string]*window
	violations map[string]uint64

	// now is swapped out by tests to control the clock.
	now func() time.Time
}

// NewLimiter creates a Limiter with per-hook limits. A hook with no entry
// (or a non-positive limit) is unlimited.
func NewLimiter(windowLen time.Duration, limits map[string]int) *Limiter {
	if windowLen <= 0 {
		windowLen = DefaultWindow
	}
	if limits == nil {
		limits = make(map[string]int)
	}

	return &Limiter{
		windowLen:  windowLen,
		limits:     limits,
		windows:    make(map[string]*window),
		violations: make(map[string]uint64),
		now:        time.Now,
	}
}

// SetLimit sets or replaces the per-window limit for a hook.
func (l *Limiter) SetLimit(hookID string, perWindow int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limits[hookID] = perWindow
}

// AllowExecution counts an execution for the hook's current window. When the
// window budget is used up it returns an ExceededError and leaves the counter
// untouched; the cumulative violation counter is incremented instead.
func (l *Limiter) AllowExecution(hookID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[hookID]
	if !ok || limit <= 0 {
		return nil
	}

	now := l.now()

	w, ok := l.windows[hookID]
	if !ok || now.Sub(w.start) >= l.windowLen {
		w = &window{start: now}
		l.windows[hookID] = w
	}

	if w.count >= limit {
		l.violations[hookID]++
		return ExceededError{HookID: hookID, Limit: limit, Window: l.windowLen}
	}

	w.count++
	return nil
}

// Violations returns the cumulative number of rejected executions for a hook.
func (l *Limiter) Violations(hookID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.violations[hookID]
}
