package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/event"
	"github.com/papercomputeco/engram/pkg/storage"
	"github.com/papercomputeco/engram/pkg/storage/inmemory"
)

func testEvent(hash string) *event.Event {
	return &event.Event{
		ProjectID:   "proj",
		SessionID:   "sess",
		Timestamp:   time.Now().UTC(),
		EventType:   event.TypeToolUse,
		Content:     "content for " + hash,
		ContentHash: hash,
	}
}

var _ = Describe("Store", func() {
	var (
		store *inmemory.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		ctx = context.Background()
	})

	Describe("InsertEvent", func() {
		It("inserts a new event and assigns an id", func() {
			id, inserted, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
			Expect(id).NotTo(BeEmpty())
		})

		It("returns the existing id on a content hash collision", func() {
			id1, _, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())

			id2, inserted, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())
			Expect(id2).To(Equal(id1))
			Expect(store.Len()).To(Equal(1))
		})

		It("stores events with no content hash un-deduplicated", func() {
			_, inserted, err := store.InsertEvent(ctx, testEvent(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			_, inserted, err = store.InsertEvent(ctx, testEvent(""))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
			Expect(store.Len()).To(Equal(2))
		})

		It("defaults the consolidation status to pending", func() {
			id, _, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())

			e, err := store.GetEvent(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.ConsolidationStatus).To(Equal(event.StatusPending))
		})
	})

	Describe("InsertEvents", func() {
		It("inserts a batch and reports the inserted count", func() {
			n, err := store.InsertEvents(ctx, []*event.Event{
				testEvent("h1"), testEvent("h2"), testEvent("h3"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("skips hashes that are already recorded", func() {
			_, _, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())

			n, err := store.InsertEvents(ctx, []*event.Event{
				testEvent("h1"), testEvent("h2"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("rejects a batch containing a nil event without inserting anything", func() {
			_, err := store.InsertEvents(ctx, []*event.Event{testEvent("h1"), nil})
			Expect(err).To(HaveOccurred())
			Expect(store.Len()).To(Equal(0))
		})
	})

	Describe("ExistingHashes", func() {
		It("reports only recorded hashes", func() {
			_, _, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = store.InsertEvent(ctx, testEvent("h2"))
			Expect(err).NotTo(HaveOccurred())

			found, err := store.ExistingHashes(ctx, []string{"h1", "h2", "h3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveKey("h1"))
			Expect(found).To(HaveKey("h2"))
			Expect(found).NotTo(HaveKey("h3"))
		})
	})

	Describe("GetEvent", func() {
		It("returns a typed not-found error for unknown ids", func() {
			_, err := store.GetEvent(ctx, "nope")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})
	})

	Describe("GetEventByHash", func() {
		It("resolves an event through its content hash", func() {
			id, _, err := store.InsertEvent(ctx, testEvent("h1"))
			Expect(err).NotTo(HaveOccurred())

			e, err := store.GetEventByHash(ctx, "h1")
			Expect(err).NotTo(HaveOccurred())
			Expect(e.ID).To(Equal(id))
		})
	})
})
