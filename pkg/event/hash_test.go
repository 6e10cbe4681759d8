package event_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/event"
)

// fixtureEvent builds the reference event used across hashing specs.
// The context map is assembled in a fixed insertion order here; specs that
// exercise order-independence build the same map in a different order.
func fixtureEvent() *event.Event {
	return &event.Event{
		ID:        "evt-001",
		ProjectID: "proj-alpha",
		SessionID: "sess-42",
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		EventType: event.TypeToolUse,
		Content:   "ran grep over pkg/",
		Context: map[string]any{
			"tool":      "grep",
			"exit_code": 0,
			"cwd":       "/work/repo",
		},
		Outcome:    event.OutcomeSuccess,
		Confidence: 0.9,
		DurationMs: 120,
	}
}

var _ = Describe("Hasher", func() {
	var hasher *event.Hasher

	BeforeEach(func() {
		hasher = event.NewHasher()
	})

	It("produces a hex-encoded SHA-256 digest", func() {
		hash, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(MatchRegexp("^[0-9a-f]{64}$"))
	})

	It("is deterministic across calls", func() {
		first, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		second, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first))
	})

	It("ignores context map insertion order", func() {
		reference, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		reordered := fixtureEvent()
		reordered.Context = map[string]any{}
		reordered.Context["cwd"] = "/work/repo"
		reordered.Context["exit_code"] = 0
		reordered.Context["tool"] = "grep"

		hash, err := hasher.Hash(reordered)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(Equal(reference))
	})

	It("excludes the id from the canonical content", func() {
		reference, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		other := fixtureEvent()
		other.ID = "evt-999"

		hash, err := hasher.Hash(other)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(Equal(reference))
	})

	It("excludes consolidation status and embedding", func() {
		reference, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		other := fixtureEvent()
		other.ConsolidationStatus = event.StatusConsolidated
		other.Embedding = []float32{0.1, 0.2}

		hash, err := hasher.Hash(other)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(Equal(reference))
	})

	It("treats differing content as distinct", func() {
		reference, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		other := fixtureEvent()
		other.Content = "ran grep over cmd/"

		hash, err := hasher.Hash(other)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).NotTo(Equal(reference))
	})

	It("treats differing timestamps as distinct events", func() {
		reference, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		other := fixtureEvent()
		other.Timestamp = other.Timestamp.Add(time.Second)

		hash, err := hasher.Hash(other)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).NotTo(Equal(reference))
	})

	It("normalizes timestamps to UTC", func() {
		reference, err := hasher.Hash(fixtureEvent())
		Expect(err).NotTo(HaveOccurred())

		other := fixtureEvent()
		other.Timestamp = other.Timestamp.In(time.FixedZone("PST", -8*60*60))

		hash, err := hasher.Hash(other)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(Equal(reference))
	})

	It("counts hashing failures without panicking", func() {
		bad := fixtureEvent()
		bad.Context = map[string]any{"ch": make(chan int)}

		_, err := hasher.Hash(bad)
		Expect(err).To(HaveOccurred())
		Expect(hasher.Failures()).To(BeEquivalentTo(1))
	})
})
