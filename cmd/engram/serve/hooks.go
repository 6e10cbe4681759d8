package servecmder

import (
	"context"
	"fmt"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/hooks"
)

// Built-in hook ids, one per episodic event type. API callers fire these to
// record agent activity without registering hooks of their own.
const (
	HookSessionStart = "session-start"
	HookSessionEnd   = "session-end"
	HookToolUse      = "tool-use"
	HookTaskOutcome  = "task-outcome"
)

// registerBuiltinHooks registers the standard recording hooks. Each turns the
// invocation context into an episodic event of the matching type.
func registerBuiltinHooks(d *hooks.Dispatcher) {
	register := func(hookID string, eventType event.Type) {
		// Ids are distinct constants; duplicate registration cannot happen.
		_ = d.Register(hookID, func(_ context.Context, inv hooks.Invocation) (*event.Event, error) {
			e := &event.Event{
				EventType: eventType,
				Content:   contextString(inv.Context, "content"),
				Context:   inv.Context,
			}

			if outcome := contextString(inv.Context, "outcome"); outcome != "" {
				e.Outcome = event.Outcome(outcome)
			}
			if confidence, ok := inv.Context["confidence"].(float64); ok {
				e.Confidence = confidence
			}
			if duration, ok := inv.Context["duration_ms"].(float64); ok {
				e.DurationMs = int64(duration)
			}

			return e, nil
		})
	}

	register(HookSessionStart, event.TypeSessionStart)
	register(HookSessionEnd, event.TypeSessionEnd)
	register(HookToolUse, event.TypeToolUse)
	register(HookTaskOutcome, event.TypeTaskOutcome)
}

// contextString reads a string value from the invocation context, stringifying
// non-string scalars.
func contextString(ctx map[string]any, key string) string {
	v, ok := ctx[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
