package idempotency

// Internal tests: the specs drive the tracker's clock directly to exercise
// window expiry without sleeping.

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tracker", func() {
	var (
		tracker *Tracker
		clock   time.Time
	)

	BeforeEach(func() {
		tracker = NewTracker(30*time.Second, 3)
		clock = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
		tracker.now = func() time.Time { return clock }
	})

	hookCtx := map[string]any{"session": "s1", "tool": "bash"}

	It("does not flag a first execution", func() {
		_, dup := tracker.IsDuplicate("session_start", hookCtx, "")
		Expect(dup).To(BeFalse())
	})

	It("flags a repeat within the window and returns the cached result", func() {
		tracker.RecordExecution("session_start", hookCtx, "", "evt-1")

		clock = clock.Add(10 * time.Second)
		cached, dup := tracker.IsDuplicate("session_start", hookCtx, "")
		Expect(dup).To(BeTrue())
		Expect(cached).To(Equal("evt-1"))
	})

	It("allows the same fingerprint again after the window elapses", func() {
		tracker.RecordExecution("session_start", hookCtx, "", "evt-1")

		clock = clock.Add(30 * time.Second)
		_, dup := tracker.IsDuplicate("session_start", hookCtx, "")
		Expect(dup).To(BeFalse())
	})

	It("slides the window on re-recording", func() {
		tracker.RecordExecution("session_start", hookCtx, "", "evt-1")

		clock = clock.Add(25 * time.Second)
		tracker.RecordExecution("session_start", hookCtx, "", "evt-2")

		clock = clock.Add(25 * time.Second)
		cached, dup := tracker.IsDuplicate("session_start", hookCtx, "")
		Expect(dup).To(BeTrue())
		Expect(cached).To(Equal("evt-2"))
	})

	It("distinguishes hooks with identical contexts", func() {
		tracker.RecordExecution("session_start", hookCtx, "", "evt-1")

		_, dup := tracker.IsDuplicate("session_end", hookCtx, "")
		Expect(dup).To(BeFalse())
	})

	It("ignores context map insertion order", func() {
		tracker.RecordExecution("tool_use", map[string]any{"a": 1, "b": 2}, "", "evt-1")

		other := map[string]any{}
		other["b"] = 2
		other["a"] = 1

		_, dup := tracker.IsDuplicate("tool_use", other, "")
		Expect(dup).To(BeTrue())
	})

	It("separates executions by explicit key", func() {
		tracker.RecordExecution("tool_use", hookCtx, "attempt-1", "evt-1")

		_, dup := tracker.IsDuplicate("tool_use", hookCtx, "attempt-2")
		Expect(dup).To(BeFalse())
	})

	It("bounds the tracked history, evicting expired records first", func() {
		tracker.RecordExecution("a", nil, "", nil)
		clock = clock.Add(31 * time.Second)

		tracker.RecordExecution("b", nil, "", nil)
		tracker.RecordExecution("c", nil, "", nil)
		tracker.RecordExecution("d", nil, "", nil)
		Expect(tracker.Len()).To(Equal(3))

		// The expired record for "a" was the one evicted.
		_, dup := tracker.IsDuplicate("b", nil, "")
		Expect(dup).To(BeTrue())
	})

	It("evicts the oldest record when nothing has expired", func() {
		tracker.RecordExecution("a", nil, "", nil)
		clock = clock.Add(time.Second)
		tracker.RecordExecution("b", nil, "", nil)
		clock = clock.Add(time.Second)
		tracker.RecordExecution("c", nil, "", nil)
		clock = clock.Add(time.Second)
		tracker.RecordExecution("d", nil, "", nil)

		Expect(tracker.Len()).To(Equal(3))
		_, dup := tracker.IsDuplicate("a", nil, "")
		Expect(dup).To(BeFalse())
		_, dup = tracker.IsDuplicate("d", nil, "")
		Expect(dup).To(BeTrue())
	})
})
