// Package cascade guards hook chains against uncontrolled recursion: cycles,
// excessive depth, and excessive fan-out of a single hook within one root
// execution.
//
// The call-stack state is carried on the context.Context threaded through the
// dispatch chain, never in a process global, so unrelated concurrent root
// executions cannot trip each other's limits. A single root execution is one
// sequential call chain; the state needs no locking of its own.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

const (
	// DefaultMaxDepth is the default nesting limit for hook chains.
	DefaultMaxDepth = 5

	// DefaultMaxBreadth is the default per-hook invocation limit within one
	// root execution.
	DefaultMaxBreadth = 10
)

// ErrViolation groups every cascade violation; errors.Is(err, ErrViolation)
// matches CycleError, DepthError and BreadthError alike.
var ErrViolation = errors.New("cascade violation")

// CycleError reports a hook that is already on the active call stack.
type CycleError struct {
	HookID string
	Stack  []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("cascade cycle: hook %q already active in chain %v", e.HookID, e.Stack)
}

func (e CycleError) Unwrap() error { return ErrViolation }

// DepthError reports a chain that has reached the nesting limit.
type DepthError struct {
	Depth int
	Max   int
}

func (e DepthError) Error() string {
	return fmt.Sprintf("cascade depth exceeded: %d of max %d", e.Depth, e.Max)
}

func (e DepthError) Unwrap() error { return ErrViolation }

// BreadthError reports a hook invoked too many times within one root execution.
type BreadthError struct {
	HookID string
	Count  int
	Max    int
}

func (e BreadthError) Error() string {
	return fmt.Sprintf("cascade breadth exceeded: hook %q fired %d times of max %d", e.HookID, e.Count, e.Max)
}

func (e BreadthError) Unwrap() error { return ErrViolation }

type ctxKey struct{}

// callState holds one root execution's call stack and per-hook counts.
// Counts are cumulative for the whole root execution: popping a hook does not
// give its budget back.
type callState struct {
	stack  []string
	counts map[string]int
}

// Monitor checks hook pushes against cycle, depth, and breadth limits.
// Monitors are stateless between calls and safe to share.
type Monitor struct {
	maxDepth   int
	maxBreadth int
}

// NewMonitor creates a Monitor. Non-positive limits select the defaults.
func NewMonitor(maxDepth, maxBreadth int) *Monitor {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxBreadth <= 0 {
		maxBreadth = DefaultMaxBreadth
	}

	return &Monitor{
		maxDepth:   maxDepth,
		maxBreadth: maxBreadth,
	}
}

// Push records hookID on the call stack carried by ctx, creating the root
// execution state on the first push of a chain. The checks run in order:
// cycle, depth, breadth. On success the returned context carries the state;
// callers must guarantee a matching Pop on every exit path:
//
//	ctx, err := monitor.Push(ctx, hookID)
//	if err != nil { ... }
//	defer monitor.Pop(ctx)
func (m *Monitor) Push(ctx context.Context, hookID string) (context.Context, error) {
	st, ok := ctx.Value(ctxKey{}).(*callState)
	if !ok {
		st = &callState{counts: make(map[string]int)}
		ctx = context.WithValue(ctx, ctxKey{}, st)
	}

	if slices.Contains(st.stack, hookID) {
		return ctx, CycleError{HookID: hookID, Stack: slices.Clone(st.stack)}
	}

	if len(st.stack) >= m.maxDepth {
		return ctx, DepthError{Depth: len(st.stack), Max: m.maxDepth}
	}

	if st.counts[hookID] >= m.maxBreadth {
		return ctx, BreadthError{HookID: hookID, Count: st.counts[hookID], Max: m.maxBreadth}
	}

	st.stack = append(st.stack, hookID)
	st.counts[hookID]++

	return ctx, nil
}

// Pop removes the top of the call stack carried by ctx. Pop on a context
// without cascade state (or with an empty stack) is a no-op, so deferred pops
// are always safe.
func (m *Monitor) Pop(ctx context.Context) {
	st, ok := ctx.Value(ctxKey{}).(*callState)
	if !ok || len(st.stack) == 0 {
		return
	}

	st.stack = st.stack[:len(st.stack)-1]
}

// Depth returns the current chain depth carried by ctx.
func (m *Monitor) Depth(ctx context.Context) int {
	st, ok := ctx.Value(ctxKey{}).(*callState)
	if !ok {
		return 0
	}

	return len(st.stack)
}
