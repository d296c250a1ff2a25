package merge_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/merge"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chatmerge/pkg/utils/test"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	vectormem "github.com/papercomputeco/chatmerge/pkg/vector/inmemory"
)

func collect(seq func(func(llm.Chunk) bool)) []llm.Chunk {
	var out []llm.Chunk
	for c := range seq {
		out = append(out, c)
	}
	return out
}

func ofType(chunks []llm.Chunk, t string) []string {
	var out []string
	for _, c := range chunks {
		if c.Type == t {
			out = append(out, c.Data)
		}
	}
	return out
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		vectors  *testutils.FailingVectorDriver
		model    *testutils.MockProvider
		events   *testutils.RecordingPublisher
		resolver vector.Resolver
		orch     *merge.Orchestrator
	)

	seedChat := func(id, title string, vecs map[string][]float32, contents ...string) {
		Expect(store.CreateConversation(ctx, &storage.Conversation{ID: id, Title: title, Provider: "openai", Model: "gpt-4o"})).To(Succeed())
		for i, content := range contents {
			role := storage.RoleUser
			if i%2 == 1 {
				role = storage.RoleAssistant
			}
			Expect(store.AppendTurn(ctx, &storage.Turn{ConversationID: id, Role: role, Content: content})).To(Succeed())
		}

		records := make([]vector.Record, 0, len(vecs))
		for rid, v := range vecs {
			records = append(records, vector.Record{ID: rid, Values: v, Metadata: vector.Metadata{
				vector.MetaChatID:  id,
				vector.MetaContent: rid,
			}})
		}
		if len(records) > 0 {
			Expect(vectors.Driver.Upsert(ctx, id, records)).To(Succeed())
		}
	}

	build := func() {
		orch = merge.New(merge.Config{
			Store:           store,
			Vectors:         resolver,
			Providers:       testutils.ProviderSet{"openai": model},
			Events:          events,
			DefaultProvider: "openai",
			DefaultModel:    "gpt-4o",
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		vectors = testutils.NewFailingVectorDriver(vectormem.NewDriver())
		model = testutils.NewMockProvider("openai", "  Welcome to ", "your merged chat!  ")
		events = &testutils.RecordingPublisher{}
		resolver = testutils.StaticResolver{Driver: vectors}

		seedChat("a", "Go", map[string][]float32{"a1": {1, 0, 0}, "a2": {0, 1, 0}}, "what is go?", "a language")
		seedChat("b", "", map[string][]float32{"b1": {1, 0.01, 0}, "b2": {0, 0, 1}}, "and rust?", "also a language")
		build()
	})

	It("merges two conversations end to end", func() {
		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}}))

		last := chunks[len(chunks)-1]
		Expect(last.Type).To(Equal(llm.ChunkMergeComplete))
		mergedID := last.Data

		Expect(ofType(chunks, llm.ChunkContent)).To(Equal([]string{
			"Loading conversations...\n",
			"Found 2 conversations with 4 total messages.\n",
			"Created merged chat (empty — context via RAG).\n",
			"Fusing vector stores (smart merge)...\n",
			"Vector fusion complete: 1 pairs fused, 1 unique kept → 3 total vectors.\n",
			"Generating intro message...\n",
			"\nWelcome to your merged chat!\n",
			"\nMerge complete!\n",
		}))
		Expect(ofType(chunks, llm.ChunkWarning)).To(BeEmpty())

		merged, err := store.GetConversation(ctx, mergedID)
		Expect(err).NotTo(HaveOccurred())
		Expect(merged.Fused).To(BeTrue())
		Expect(merged.Title).To(Equal("Merged: Go, Chat 2"))
		Expect(merged.SystemPrompt).To(HavePrefix("You are a merged AI assistant with access to semantically fused context from 2 conversations: Go, Chat 2."))

		turns, err := store.ListTurns(ctx, mergedID)
		Expect(err).NotTo(HaveOccurred())
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].Origin).To(Equal(storage.OriginMerge))
		Expect(turns[0].Role).To(Equal(storage.RoleAssistant))
		Expect(turns[0].Content).To(Equal("Welcome to your merged chat!"))

		stats, err := vectors.Stats(ctx, mergedID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Count).To(Equal(3))

		records, err := store.ListMergeRecords(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].SourceChatIDs).To(Equal([]string{"a", "b"}))
		Expect(records[0].ResultChatID).To(Equal(mergedID))
		Expect(records[0].MergeModel).To(Equal("gpt-4o"))

		Expect(events.Merges()).To(HaveLen(1))
		Expect(events.Merges()[0].Strategy).To(Equal(string(merge.StrategyFusion)))
		Expect(events.Merges()[0].Total).To(Equal(3))

		req := model.LastRequest()
		Expect(req.MaxTokens).To(Equal(300))
		Expect(req.Messages).To(HaveLen(1))
		prompt := req.Messages[0].GetText()
		Expect(prompt).To(ContainSubstring(`## Conversation 1: "Go"`))
		Expect(prompt).To(ContainSubstring("User: what is go?\nAssistant: a language"))
		Expect(prompt).To(ContainSubstring(`## Conversation 2: "Chat 2"`))
	})

	It("rejects fewer than two sources before any mutation", func() {
		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a"}}))
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].Type).To(Equal(llm.ChunkError))

		all, err := store.ListConversations(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("reports missing sources before any mutation", func() {
		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "nope"}}))
		last := chunks[len(chunks)-1]
		Expect(last).To(Equal(llm.ErrorChunk("Chat nope not found")))

		all, err := store.ListConversations(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("rolls the merged conversation back without a vector store", func() {
		resolver = testutils.StaticResolver{}
		build()

		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}}))
		last := chunks[len(chunks)-1]
		Expect(last).To(Equal(llm.ErrorChunk(merge.VectorStoreRequired)))
		Expect(ofType(chunks, llm.ChunkContent)).To(ContainElement("Created merged chat (empty — context via RAG).\n"))

		all, err := store.ListConversations(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))

		records, err := store.ListMergeRecords(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
		Expect(events.Merges()).To(BeEmpty())
	})

	It("falls back to a union merge when fusion fails", func() {
		vectors.FailUpserts.Store(1)

		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}}))
		Expect(chunks[len(chunks)-1].Type).To(Equal(llm.ChunkMergeComplete))
		mergedID := chunks[len(chunks)-1].Data

		warnings := ofType(chunks, llm.ChunkWarning)
		Expect(warnings).To(HaveLen(1))
		Expect(warnings[0]).To(HavePrefix("Smart fusion failed — using simple union merge. Reason: "))
		Expect(ofType(chunks, llm.ChunkContent)).To(ContainElement("Fallback union merge complete.\n"))

		stats, err := vectors.Stats(ctx, mergedID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Count).To(Equal(4))

		turns, err := store.ListTurns(ctx, mergedID)
		Expect(err).NotTo(HaveOccurred())
		Expect(turns[0].Content).To(HaveSuffix("\n\n⚠ " + warnings[0]))
		Expect(events.Merges()[0].Strategy).To(Equal(string(merge.StrategyUnion)))
	})

	It("continues when both fusion and union fail", func() {
		vectors.FailUpsert.Store(true)

		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}}))
		Expect(chunks[len(chunks)-1].Type).To(Equal(llm.ChunkMergeComplete))

		var failed bool
		for _, c := range ofType(chunks, llm.ChunkContent) {
			if strings.HasPrefix(c, "Vector merge failed: ") {
				failed = true
			}
		}
		Expect(failed).To(BeTrue())
		Expect(events.Merges()[0].Strategy).To(Equal(string(merge.StrategyNone)))
	})

	It("uses the templated introduction when the provider has no key", func() {
		orch = merge.New(merge.Config{
			Store:     store,
			Vectors:   resolver,
			Providers: testutils.ProviderSet{},
		})

		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}}))
		Expect(chunks[len(chunks)-1].Type).To(Equal(llm.ChunkMergeComplete))
		Expect(ofType(chunks, llm.ChunkContent)).To(ContainElement(
			"\n" + merge.TemplateIntro([]string{"Go", "Chat 2"}) + "\n",
		))
	})

	It("uses the templated introduction when generation fails", func() {
		model.Chunks = []llm.Chunk{llm.ContentChunk("partial"), llm.ErrorChunk("OpenAI error: boom")}

		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}}))
		Expect(ofType(chunks, llm.ChunkContent)).To(ContainElement(
			"\n" + merge.TemplateIntro([]string{"Go", "Chat 2"}) + "\n",
		))
		Expect(ofType(chunks, llm.ChunkError)).To(BeEmpty())
	})

	It("stops when the consumer stops reading", func() {
		for c := range orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}}) {
			if strings.HasPrefix(c.Data, "Created merged chat") {
				break
			}
		}

		records, err := store.ListMergeRecords(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
		Expect(vectors.UpsertCalls.Load()).To(BeZero())
	})

	It("rejects unsupported providers", func() {
		chunks := collect(orch.Merge(ctx, merge.Request{SourceIDs: []string{"a", "b"}, Provider: "cohere"}))
		Expect(chunks).To(Equal([]llm.Chunk{llm.ErrorChunk("Unsupported provider: cohere")}))
	})
})
