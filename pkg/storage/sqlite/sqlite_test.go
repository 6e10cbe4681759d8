package sqlite_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/storage"
	"github.com/papercomputeco/engram/pkg/storage/sqlite"
)

func testEvent(hash string) *event.Event {
	return &event.Event{
		ProjectID: "proj",
		SessionID: "sess",
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		EventType: event.TypeToolUse,
		Content:   "content for " + hash,
		Context: map[string]any{
			"tool": "bash",
		},
		Outcome:     event.OutcomeSuccess,
		Confidence:  0.8,
		DurationMs:  42,
		ContentHash: hash,
	}
}

var _ = Describe("Store", func() {
	var (
		store *sqlite.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		store, err = sqlite.NewStore(":memory:")
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("InsertEvent", func() {
		It("round-trips an event through the database", func() {
			id, inserted, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := store.GetEvent(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ProjectID).To(Equal("proj"))
			Expect(got.EventType).To(Equal(event.TypeToolUse))
			Expect(got.Context).To(HaveKeyWithValue("tool", "bash"))
			Expect(got.Outcome).To(Equal(event.OutcomeSuccess))
			Expect(got.ContentHash).To(Equal("h1"))
			Expect(got.ConsolidationStatus).To(Equal(event.StatusPending))
		})

		It("treats a unique-constraint hit as already recorded", func() {
			id1, _, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())

			id2, inserted, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())
			Expect(id2).To(Equal(id1))
		})

		It("persists events without a content hash", func() {
			e := testEvent("")
			_, inserted, err := store.InsertEvent(ctx, e)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			_, inserted, err = store.InsertEvent(ctx, testEvent(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})

		It("round-trips an embedding", func() {
			e := testEvent("h1")
			e.Embedding = []float32{0.25, -0.5, 1}

			id, _, err := store.InsertEvent(ctx, e)
			Expect(err).NotTo(HaveOccurred())

			got, err := store.GetEvent(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Embedding).To(Equal([]float32{0.25, -0.5, 1}))
		})
	})

	Describe("InsertEvents", func() {
		It("inserts a batch transactionally and reports the count", func() {
			n, err := store.InsertEvents(ctx, []*event.Event{
				testEvent("h1"), testEvent("h2"), testEvent("h3"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("rolls the whole batch back on failure", func() {
			_, err := store.InsertEvents(ctx, []*event.Event{
				testEvent("h1"), nil, testEvent("h2"),
			})
			Expect(err).To(HaveOccurred())

			found, err := store.ExistingHashes(ctx, []string{"h1", "h2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())
		})
	})

	Describe("ExistingHashes", func() {
		It("answers a bulk lookup in chunks beyond the parameter limit", func() {
			var events []*event.Event
			var hashes []string
			for i := range 600 {
				h := fmt.Sprintf("hash-%04d", i)
				events = append(events, testEvent(h))
				hashes = append(hashes, h)
			}

			_, err := store.InsertEvents(ctx, events)
			Expect(err).NotTo(HaveOccurred())

			found, err := store.ExistingHashes(ctx, append(hashes, "missing"))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(600))
			Expect(found).NotTo(HaveKey("missing"))
		})
	})

	Describe("GetEventByHash", func() {
		It("returns a typed not-found error for unknown hashes", func() {
			_, err := store.GetEventByHash(ctx, "nope")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})
	})
})
