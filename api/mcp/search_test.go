package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/retrieval"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chatmerge/pkg/utils/test"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	vectormem "github.com/papercomputeco/chatmerge/pkg/vector/inmemory"
)

func resultText(r *mcp.CallToolResult) string {
	Expect(r.Content).To(HaveLen(1))
	text, ok := r.Content[0].(*mcp.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

type failingSearcher struct{ err error }

func (f failingSearcher) Search(context.Context, string, string, int) ([]retrieval.Retrieved, error) {
	return nil, f.err
}

var _ = Describe("Retrieval tools", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		vectors  *vectormem.Driver
		embedder *testutils.MockEmbedder
		chat     *storage.Conversation
		server   *Server
	)

	newServer := func(searcher Searcher) *Server {
		s, err := NewServer(Config{Store: store, Searcher: searcher, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		vectors = vectormem.NewDriver()
		embedder = testutils.NewMockEmbedder()

		chat = &storage.Conversation{Title: "Cooking", Provider: "openai", Model: "gpt-4o"}
		Expect(store.CreateConversation(ctx, chat)).To(Succeed())

		server = newServer(retrieval.NewAssembler(retrieval.Config{
			Store:    store,
			Vectors:  testutils.StaticResolver{Driver: vectors},
			Embedder: embedder,
		}))
	})

	Describe("retrieve_context", func() {
		BeforeEach(func() {
			embedder.Set("pasta", []float32{1, 0})
			Expect(vectors.Upsert(ctx, chat.ID, []vector.Record{
				{ID: "t1", Values: []float32{1, 0}, Metadata: vector.Metadata{
					vector.MetaRole: "user", vector.MetaContent: "how long to boil pasta", vector.MetaTurnID: "t1",
				}},
				{ID: "t2", Values: []float32{0, 1}, Metadata: vector.Metadata{
					vector.MetaRole: "assistant", vector.MetaContent: "bake at 180C", vector.MetaTurnID: "t2",
				}},
			})).To(Succeed())
		})

		It("returns ranked matches", func() {
			result, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{ChatID: chat.ID, Query: "pasta", TopK: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Count).To(Equal(1))
			Expect(output.Results[0].TurnID).To(Equal("t1"))
			Expect(output.Results[0].Content).To(Equal("how long to boil pasta"))

			var decoded RetrieveOutput
			Expect(json.Unmarshal([]byte(resultText(result)), &decoded)).To(Succeed())
			Expect(decoded.ChatID).To(Equal(chat.ID))
			Expect(decoded.Results).To(HaveLen(1))
		})

		It("defaults top_k", func() {
			_, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{ChatID: chat.ID, Query: "pasta"})
			Expect(err).NotTo(HaveOccurred())
			Expect(output.Count).To(Equal(2))
		})

		It("requires a chat ID and a query", func() {
			result, _, err := server.handleRetrieve(ctx, nil, RetrieveInput{Query: "pasta"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(resultText(result)).To(Equal("chat_id is required"))

			result, _, err = server.handleRetrieve(ctx, nil, RetrieveInput{ChatID: chat.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(resultText(result)).To(Equal("query is required"))
		})

		It("reports an unknown chat", func() {
			result, _, err := server.handleRetrieve(ctx, nil, RetrieveInput{ChatID: "missing", Query: "pasta"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(resultText(result)).To(Equal("Chat missing not found"))
		})

		It("reports a missing vector store", func() {
			s := newServer(failingSearcher{err: vector.ErrNotConfigured})
			result, _, err := s.handleRetrieve(ctx, nil, RetrieveInput{ChatID: chat.ID, Query: "pasta"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(resultText(result)).To(Equal("No vector store is configured"))
		})

		It("reports search failures", func() {
			s := newServer(failingSearcher{err: errors.New("boom")})
			result, _, err := s.handleRetrieve(ctx, nil, RetrieveInput{ChatID: chat.ID, Query: "pasta"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(resultText(result)).To(ContainSubstring("boom"))
		})
	})

	Describe("list_conversations", func() {
		It("lists stored conversations", func() {
			other := &storage.Conversation{Title: "Travel", Provider: "anthropic", Model: "claude"}
			Expect(store.CreateConversation(ctx, other)).To(Succeed())

			result, output, err := server.handleList(ctx, nil, ListInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Count).To(Equal(2))

			titles := []string{output.Conversations[0].Title, output.Conversations[1].Title}
			Expect(titles).To(ConsistOf("Cooking", "Travel"))
		})

		It("honours the limit", func() {
			other := &storage.Conversation{Title: "Travel", Provider: "anthropic", Model: "claude"}
			Expect(store.CreateConversation(ctx, other)).To(Succeed())

			_, output, err := server.handleList(ctx, nil, ListInput{Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(output.Conversations).To(HaveLen(1))
		})
	})
})
