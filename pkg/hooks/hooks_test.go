package hooks_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/dedup"
	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/guard/cascade"
	"github.com/papercomputeco/engram/pkg/guard/idempotency"
	"github.com/papercomputeco/engram/pkg/guard/ratelimit"
	"github.com/papercomputeco/engram/pkg/hooks"
	"github.com/papercomputeco/engram/pkg/storage/inmemory"
)

// countingHook returns a HookFunc producing a fixed event and the counter of
// how many times its body actually ran.
func countingHook(content string) (hooks.HookFunc, *atomic.Int64) {
	var runs atomic.Int64

	fn := func(_ context.Context, inv hooks.Invocation) (*event.Event, error) {
		runs.Add(1)
		return &event.Event{
			EventType: event.TypeToolUse,
			Content:   content,
			Context:   inv.Context,
			Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		}, nil
	}

	return fn, &runs
}

var _ = Describe("Dispatcher", func() {
	var (
		store      *inmemory.Store
		dedupStore *dedup.Store
		dispatcher *hooks.Dispatcher
		ctx        context.Context
	)

	newDispatcher := func(cfg hooks.Config) *hooks.Dispatcher {
		store = inmemory.NewStore()

		var err error
		dedupStore, err = dedup.NewStore(store, 0, nil)
		Expect(err).NotTo(HaveOccurred())

		cfg.Dedup = dedupStore
		d, err := hooks.NewDispatcher(cfg)
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	BeforeEach(func() {
		dispatcher = newDispatcher(hooks.Config{})
		ctx = context.Background()
	})

	Describe("Register", func() {
		It("rejects duplicate registration", func() {
			fn, _ := countingHook("x")
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())
			Expect(dispatcher.Register("tool_use", fn)).NotTo(Succeed())
		})

		It("rejects a nil hook func", func() {
			Expect(dispatcher.Register("tool_use", nil)).NotTo(Succeed())
		})
	})

	Describe("Fire", func() {
		It("errors on an unknown hook", func() {
			_, err := dispatcher.Fire(ctx, "nope", hooks.Invocation{})

			var unknown hooks.UnknownHookError
			Expect(errors.As(err, &unknown)).To(BeTrue())
		})

		It("executes the body and records the event", func() {
			fn, runs := countingHook("observed action")
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())

			res, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{ProjectID: "proj"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(hooks.StatusExecuted))
			Expect(res.EventID).NotTo(BeEmpty())
			Expect(runs.Load()).To(BeEquivalentTo(1))

			stored, err := store.GetEvent(ctx, res.EventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ProjectID).To(Equal("proj"))
			Expect(stored.ContentHash).NotTo(BeEmpty())
		})

		It("is a no-op for a disabled hook", func() {
			fn, runs := countingHook("x")
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())
			Expect(dispatcher.Disable("tool_use")).To(Succeed())

			res, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(hooks.StatusDisabled))
			Expect(runs.Load()).To(BeZero())
		})

		It("auto-starts a session when none is active", func() {
			var seen string
			fn := func(_ context.Context, inv hooks.Invocation) (*event.Event, error) {
				seen = inv.SessionID
				return &event.Event{EventType: event.TypeSessionStart, Content: "begin"}, nil
			}
			Expect(dispatcher.Register("session_start", fn)).To(Succeed())

			res, err := dispatcher.Fire(ctx, "session_start", hooks.Invocation{})
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).NotTo(BeEmpty())

			stored, err := store.GetEvent(ctx, res.EventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.SessionID).To(Equal(seen))
		})

		It("accepts an event whose content cannot be hashed", func() {
			fn := func(_ context.Context, _ hooks.Invocation) (*event.Event, error) {
				return &event.Event{
					EventType: event.TypeToolUse,
					Content:   "unhashable",
					Context:   map[string]any{"ch": make(chan int)},
				}, nil
			}
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())

			res, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(hooks.StatusExecuted))

			stored, err := store.GetEvent(ctx, res.EventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ContentHash).To(BeEmpty())
		})

		It("records hook body failures in the registry stats", func() {
			boom := errors.New("boom")
			fn := func(_ context.Context, _ hooks.Invocation) (*event.Event, error) {
				return nil, boom
			}
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())

			_, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{})
			Expect(errors.Is(err, boom)).To(BeTrue())

			stats, err := dispatcher.Stats("tool_use")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ExecutionCount).To(BeZero())
			Expect(stats.LastError).To(ContainSubstring("boom"))
		})
	})

	Describe("idempotency window", func() {
		It("executes the side effect exactly once for identical calls", func() {
			fn, runs := countingHook("begin")
			Expect(dispatcher.Register("session_start", fn)).To(Succeed())

			inv := hooks.Invocation{Context: map[string]any{"trigger": "login"}}

			first, err := dispatcher.Fire(ctx, "session_start", inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Status).To(Equal(hooks.StatusExecuted))

			second, err := dispatcher.Fire(ctx, "session_start", inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Status).To(Equal(hooks.StatusDuplicateCall))
			Expect(second.EventID).To(Equal(first.EventID))
			Expect(runs.Load()).To(BeEquivalentTo(1))
		})

		It("executes again once the window has passed", func() {
			dispatcher = newDispatcher(hooks.Config{
				Tracker: idempotency.NewTracker(10*time.Millisecond, 0),
			})

			fn, runs := countingHook("begin")
			Expect(dispatcher.Register("session_start", fn)).To(Succeed())

			inv := hooks.Invocation{Context: map[string]any{"trigger": "login"}}

			_, err := dispatcher.Fire(ctx, "session_start", inv)
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(20 * time.Millisecond)

			second, err := dispatcher.Fire(ctx, "session_start", inv)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Status).To(Equal(hooks.StatusAlreadyRecorded))
			Expect(runs.Load()).To(BeEquivalentTo(2))
		})

		It("does not suppress calls with differing context", func() {
			fn, runs := countingHook("begin")
			Expect(dispatcher.Register("session_start", fn)).To(Succeed())

			_, err := dispatcher.Fire(ctx, "session_start", hooks.Invocation{Context: map[string]any{"n": 1}})
			Expect(err).NotTo(HaveOccurred())
			_, err = dispatcher.Fire(ctx, "session_start", hooks.Invocation{Context: map[string]any{"n": 2}})
			Expect(err).NotTo(HaveOccurred())

			Expect(runs.Load()).To(BeEquivalentTo(2))
		})
	})

	Describe("rate limiting", func() {
		It("fails the call past the limit with a typed error", func() {
			dispatcher = newDispatcher(hooks.Config{
				Limiter: ratelimit.NewLimiter(time.Minute, map[string]int{"tool_use": 2}),
			})

			fn, _ := countingHook("x")
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())

			// Distinct contexts so the idempotency window does not kick in first.
			for i := range 2 {
				_, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{Context: map[string]any{"n": i}})
				Expect(err).NotTo(HaveOccurred())
			}

			_, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{Context: map[string]any{"n": 99}})

			var exceeded ratelimit.ExceededError
			Expect(errors.As(err, &exceeded)).To(BeTrue())
		})
	})

	Describe("cascade guards", func() {
		It("detects a cycle before the body runs a second time", func() {
			var bErr error
			aRuns := 0

			Expect(dispatcher.Register("hook_a", func(c context.Context, _ hooks.Invocation) (*event.Event, error) {
				aRuns++
				if aRuns == 1 {
					_, bErr = dispatcher.Fire(c, "hook_b", hooks.Invocation{Context: map[string]any{"from": "a"}})
				}
				return &event.Event{EventType: event.TypeToolUse, Content: fmt.Sprintf("a-%d", aRuns)}, nil
			})).To(Succeed())

			Expect(dispatcher.Register("hook_b", func(c context.Context, _ hooks.Invocation) (*event.Event, error) {
				_, err := dispatcher.Fire(c, "hook_a", hooks.Invocation{Context: map[string]any{"from": "b"}})

				var cycle cascade.CycleError
				Expect(errors.As(err, &cycle)).To(BeTrue())
				Expect(cycle.HookID).To(Equal("hook_a"))

				return &event.Event{EventType: event.TypeToolUse, Content: "b"}, nil
			})).To(Succeed())

			_, err := dispatcher.Fire(ctx, "hook_a", hooks.Invocation{})
			Expect(err).NotTo(HaveOccurred())
			Expect(bErr).NotTo(HaveOccurred())
			Expect(aRuns).To(Equal(1))
		})

		It("fails the 6th nested fire with max depth 5", func() {
			dispatcher = newDispatcher(hooks.Config{
				Monitor: cascade.NewMonitor(5, 10),
			})

			var depthErr error
			for i := range 6 {
				id := fmt.Sprintf("level_%d", i)
				next := fmt.Sprintf("level_%d", i+1)

				Expect(dispatcher.Register(id, func(c context.Context, _ hooks.Invocation) (*event.Event, error) {
					if next != "level_6" {
						_, err := dispatcher.Fire(c, next, hooks.Invocation{Context: map[string]any{"level": next}})
						if err != nil {
							depthErr = err
						}
					}
					return &event.Event{EventType: event.TypeToolUse, Content: id}, nil
				})).To(Succeed())
			}

			_, err := dispatcher.Fire(ctx, "level_0", hooks.Invocation{})
			Expect(err).NotTo(HaveOccurred())

			var depth cascade.DepthError
			Expect(errors.As(depthErr, &depth)).To(BeTrue())
		})

		It("fails the 11th same-hook fire in one root with max breadth 10", func() {
			dispatcher = newDispatcher(hooks.Config{
				Monitor: cascade.NewMonitor(5, 10),
			})

			fn, childRuns := countingHook("child work")
			Expect(dispatcher.Register("child", fn)).To(Succeed())

			var breadthErr error
			Expect(dispatcher.Register("root", func(c context.Context, _ hooks.Invocation) (*event.Event, error) {
				for i := range 11 {
					_, err := dispatcher.Fire(c, "child", hooks.Invocation{Context: map[string]any{"n": i}})
					if err != nil {
						breadthErr = err
					}
				}
				return &event.Event{EventType: event.TypeToolUse, Content: "root"}, nil
			})).To(Succeed())

			_, err := dispatcher.Fire(ctx, "root", hooks.Invocation{})
			Expect(err).NotTo(HaveOccurred())

			var breadth cascade.BreadthError
			Expect(errors.As(breadthErr, &breadth)).To(BeTrue())
			Expect(childRuns.Load()).To(BeEquivalentTo(10))
		})
	})

	Describe("content dedup", func() {
		It("returns the existing id when identical content was already recorded", func() {
			// The body produces identical canonical content regardless of
			// the invocation context.
			fn := func(_ context.Context, _ hooks.Invocation) (*event.Event, error) {
				return &event.Event{
					EventType: event.TypeToolUse,
					Content:   "same content",
					Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
				}, nil
			}
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())

			first, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{
				SessionID: "s1",
				Context:   map[string]any{"n": 1},
			})
			Expect(err).NotTo(HaveOccurred())

			// A different invocation context beats the idempotency window.
			second, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{
				SessionID: "s1",
				Context:   map[string]any{"n": 1, "retry": true},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Status).To(Equal(hooks.StatusAlreadyRecorded))
			Expect(second.EventID).To(Equal(first.EventID))
			Expect(store.Len()).To(Equal(1))
		})
	})

	Describe("Stats", func() {
		It("counts successful executions", func() {
			fn, _ := countingHook("x")
			Expect(dispatcher.Register("tool_use", fn)).To(Succeed())

			for i := range 3 {
				_, err := dispatcher.Fire(ctx, "tool_use", hooks.Invocation{Context: map[string]any{"n": i}})
				Expect(err).NotTo(HaveOccurred())
			}

			stats, err := dispatcher.Stats("tool_use")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ExecutionCount).To(BeEquivalentTo(3))
			Expect(stats.Enabled).To(BeTrue())
			Expect(stats.LastError).To(BeEmpty())
		})
	})
})
