package api

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/completion"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/merge"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	"github.com/papercomputeco/chatmerge/pkg/worker"
)

func chunkTypes(chunks []llm.Chunk) []string {
	types := make([]string, 0, len(chunks))
	for _, c := range chunks {
		types = append(types, c.Type)
	}
	return types
}

var _ = Describe("Streaming handlers", func() {
	var (
		ctx context.Context
		ts  *testServer
	)

	BeforeEach(func() {
		ctx = context.Background()
		ts = newTestServer(Config{}, true)
	})

	Describe("POST /api/chats/:id/completions", func() {
		It("streams the reply as SSE and persists both turns", func() {
			conv := ts.seedChat("Go")

			resp := ts.request(http.MethodPost, "/api/chats/"+conv.ID+"/completions", completion.Request{Content: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
			Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))

			chunks := readChunks(resp)
			Expect(chunkTypes(chunks)).To(Equal([]string{llm.ChunkContent, llm.ChunkContent, llm.ChunkDone}))
			Expect(chunks[0].Data + chunks[1].Data).To(Equal("Hello world"))

			turns, err := ts.store.ListTurns(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Content).To(Equal("hi"))
			Expect(turns[1].Content).To(Equal("Hello world"))
			Expect(chunks[2].Data).To(Equal(turns[1].ID))

			Expect(ts.indexer.Jobs()).To(HaveLen(1))
			Expect(ts.indexer.Jobs()[0].Kind).To(Equal(worker.KindIndex))
		})

		It("streams provider errors as error chunks", func() {
			ts.model.Chunks = []llm.Chunk{llm.ContentChunk("par"), llm.ErrorChunk("rate limited")}
			conv := ts.seedChat("Go")

			resp := ts.request(http.MethodPost, "/api/chats/"+conv.ID+"/completions", completion.Request{Content: "hi"})
			chunks := readChunks(resp)
			Expect(chunks[len(chunks)-1]).To(Equal(llm.ErrorChunk("rate limited")))

			turns, err := ts.store.ListTurns(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Role).To(Equal(storage.RoleUser))
		})

		It("returns 404 before streaming for unknown chats", func() {
			resp := ts.request(http.MethodPost, "/api/chats/missing/completions", completion.Request{Content: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(errorMessage(resp)).To(Equal("Chat missing not found"))
		})

		It("requires content", func() {
			conv := ts.seedChat("Go")
			resp := ts.request(http.MethodPost, "/api/chats/"+conv.ID+"/completions", completion.Request{Content: "  "})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/merge", func() {
		seedIndexed := func(title string, vec []float32, contents ...string) *storage.Conversation {
			conv := ts.seedChat(title, contents...)
			Expect(ts.vectors.Upsert(ctx, conv.ID, []vector.Record{{
				ID:       conv.ID + "-1",
				Values:   vec,
				Metadata: vector.Metadata{vector.MetaChatID: conv.ID, vector.MetaContent: contents[0]},
			}})).To(Succeed())
			return conv
		}

		It("streams the merge and records it", func() {
			a := seedIndexed("Go", []float32{1, 0, 0}, "what is go?", "a language")
			b := seedIndexed("Rust", []float32{0, 1, 0}, "and rust?", "also a language")

			resp := ts.request(http.MethodPost, "/api/merge", merge.Request{SourceIDs: []string{a.ID, b.ID}})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

			chunks := readChunks(resp)
			last := chunks[len(chunks)-1]
			Expect(last.Type).To(Equal(llm.ChunkMergeComplete))

			merged, err := ts.store.GetConversation(ctx, last.Data)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Fused).To(BeTrue())
			Expect(merged.Title).To(Equal("Merged: Go, Rust"))

			stats, err := ts.vectors.Stats(ctx, merged.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Count).To(Equal(2))

			history := ts.request(http.MethodGet, "/api/merge/history", nil)
			Expect(history.StatusCode).To(Equal(http.StatusOK))

			var records []storage.MergeRecord
			decodeBody(history, &records)
			Expect(records).To(HaveLen(1))
			Expect(records[0].ResultChatID).To(Equal(merged.ID))
			Expect(records[0].SourceChatIDs).To(Equal([]string{a.ID, b.ID}))
		})

		It("rejects fewer than two chats", func() {
			conv := ts.seedChat("Go")
			resp := ts.request(http.MethodPost, "/api/merge", merge.Request{SourceIDs: []string{conv.ID}})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorMessage(resp)).To(Equal("At least 2 chat IDs required for merge"))
		})

		It("streams pipeline errors", func() {
			conv := ts.seedChat("Go")
			resp := ts.request(http.MethodPost, "/api/merge", merge.Request{SourceIDs: []string{conv.ID, "missing"}})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			chunks := readChunks(resp)
			Expect(chunks[len(chunks)-1]).To(Equal(llm.ErrorChunk("Chat missing not found")))
		})
	})
})
