package ratelimit

// Internal tests: the specs drive the limiter's clock to step across window
// boundaries without sleeping.

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Limiter", func() {
	var (
		limiter *Limiter
		clock   time.Time
	)

	BeforeEach(func() {
		limiter = NewLimiter(time.Minute, map[string]int{"tool_use": 3})
		clock = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
		limiter.now = func() time.Time { return clock }
	})

	It("allows executions up to the limit", func() {
		for range 3 {
			Expect(limiter.AllowExecution("tool_use")).To(Succeed())
		}
	})

	It("rejects the call after the limit with a typed error", func() {
		for range 3 {
			Expect(limiter.AllowExecution("tool_use")).To(Succeed())
		}

		err := limiter.AllowExecution("tool_use")
		Expect(err).To(HaveOccurred())

		var exceeded ExceededError
		Expect(errors.As(err, &exceeded)).To(BeTrue())
		Expect(exceeded.HookID).To(Equal("tool_use"))
		Expect(exceeded.Limit).To(Equal(3))
	})

	It("does not count rejected calls against the window", func() {
		for range 3 {
			Expect(limiter.AllowExecution("tool_use")).To(Succeed())
		}
		for range 5 {
			Expect(limiter.AllowExecution("tool_use")).NotTo(Succeed())
		}

		// A new window grants the full budget again regardless of how many
		// rejections piled up in the previous one.
		clock = clock.Add(time.Minute)
		for range 3 {
			Expect(limiter.AllowExecution("tool_use")).To(Succeed())
		}
	})

	It("tracks cumulative violations per hook", func() {
		for range 3 {
			Expect(limiter.AllowExecution("tool_use")).To(Succeed())
		}
		for range 4 {
			_ = limiter.AllowExecution("tool_use")
		}

		Expect(limiter.Violations("tool_use")).To(BeEquivalentTo(4))
		Expect(limiter.Violations("other")).To(BeZero())
	})

	It("treats hooks without a configured limit as unlimited", func() {
		for range 1000 {
			Expect(limiter.AllowExecution("unlimited_hook")).To(Succeed())
		}
	})

	It("keeps hooks independent", func() {
		limiter.SetLimit("session_start", 1)

		Expect(limiter.AllowExecution("session_start")).To(Succeed())
		Expect(limiter.AllowExecution("session_start")).NotTo(Succeed())
		Expect(limiter.AllowExecution("tool_use")).To(Succeed())
	})

	It("resets the counter when a full window has elapsed", func() {
		limiter.SetLimit("session_start", 1)
		Expect(limiter.AllowExecution("session_start")).To(Succeed())
		Expect(limiter.AllowExecution("session_start")).NotTo(Succeed())

		clock = clock.Add(59 * time.Second)
		Expect(limiter.AllowExecution("session_start")).NotTo(Succeed())

		clock = clock.Add(time.Second)
		Expect(limiter.AllowExecution("session_start")).To(Succeed())
	})
})
