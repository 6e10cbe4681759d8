package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/embeddings/ollama"
)

var _ = Describe("Embedder", func() {
	var (
		server   *httptest.Server
		embedder *ollama.Embedder
		ctx      context.Context
	)

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	newEmbedder := func(handler http.HandlerFunc) {
		server = httptest.NewServer(handler)

		var err error
		embedder, err = ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: server.URL,
			Model:   "test-model",
		})
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	}

	It("sends the batch input form and returns one vector per text", func() {
		newEmbedder(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/embed"))

			var req struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req.Model).To(Equal("test-model"))
			Expect(req.Input).To(Equal([]string{"one", "two"}))

			json.NewEncoder(w).Encode(map[string]any{
				"embeddings": [][]float32{{0.1, 0.2}, {0.3, 0.4}},
			})
		})

		vectors, err := embedder.EmbedBatch(ctx, []string{"one", "two"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(HaveLen(2))
		Expect(vectors[0]).To(Equal([]float32{0.1, 0.2}))
	})

	It("wraps provider errors in ErrEmbedding", func() {
		newEmbedder(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		})

		_, err := embedder.EmbedBatch(ctx, []string{"one"})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})

	It("rejects a count mismatch between inputs and embeddings", func() {
		newEmbedder(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"embeddings": [][]float32{{0.1}},
			})
		})

		_, err := embedder.EmbedBatch(ctx, []string{"one", "two"})
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})

	It("short-circuits an empty batch without a request", func() {
		newEmbedder(func(w http.ResponseWriter, r *http.Request) {
			Fail("no request expected for an empty batch")
		})

		vectors, err := embedder.EmbedBatch(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors).To(BeNil())
	})
})
