package ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider/ollama"
)

var _ = Describe("Provider", func() {
	var (
		mu       sync.Mutex
		lastPath string
		lastBody map[string]any
		lines    string
		p        *ollama.Provider
	)

	BeforeEach(func() {
		mu.Lock()
		lastPath, lastBody, lines = "", nil, ""
		mu.Unlock()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			_ = json.Unmarshal(raw, &body)

			mu.Lock()
			lastPath, lastBody = r.URL.Path, body
			out := lines
			mu.Unlock()

			w.Header().Set("Content-Type", "application/x-ndjson")
			_, _ = io.WriteString(w, out)
		}))
		DeferCleanup(server.Close)

		p = ollama.New(ollama.Config{BaseURL: server.URL})
	})

	respond := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		lines = s
	}

	collect := func(req llm.ChatRequest) []llm.Chunk {
		var out []llm.Chunk
		for c := range p.Stream(context.Background(), req) {
			out = append(out, c)
		}
		return out
	}

	It("needs no key and lists default models", func() {
		Expect(p.Name()).To(Equal("ollama"))
		Expect(p.RequiresKey()).To(BeFalse())
		Expect(p.Models()).To(ContainElement("llama3.2"))
	})

	It("streams NDJSON lines until done", func() {
		respond(`{"model":"llama3.2","message":{"role":"assistant","content":"","thinking":"hmm"},"done":false}
{"model":"llama3.2","message":{"role":"assistant","content":"Hel"},"done":false}

{"model":"llama3.2","message":{"role":"assistant","content":"lo"},"done":false}
{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}
`)

		chunks := collect(llm.ChatRequest{
			Model:    "llama3.2",
			System:   "be kind",
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		})

		Expect(chunks).To(Equal([]llm.Chunk{
			llm.ReasoningChunk("hmm"),
			llm.ContentChunk("Hel"),
			llm.ContentChunk("lo"),
			llm.DoneChunk(""),
		}))

		mu.Lock()
		defer mu.Unlock()
		Expect(lastPath).To(Equal("/api/chat"))
		Expect(lastBody["stream"]).To(BeTrue())
		messages := lastBody["messages"].([]any)
		Expect(messages[0]).To(Equal(map[string]any{"role": "system", "content": "be kind"}))
	})

	It("passes images and generation options", func() {
		respond(`{"done":true}` + "\n")
		msg := llm.NewTextMessage(llm.RoleUser, "describe")
		msg.Content = append(msg.Content, llm.NewAttachmentBlock("p.png", "image/png", []byte{0xff}))
		temp := 0.2
		collect(llm.ChatRequest{Model: "llava", Temperature: &temp, MaxTokens: 64, Messages: []llm.Message{msg}})

		mu.Lock()
		defer mu.Unlock()
		user := lastBody["messages"].([]any)[0].(map[string]any)
		Expect(user["content"]).To(Equal("describe"))
		Expect(user["images"]).To(Equal([]any{"/w=="}))
		Expect(lastBody["options"]).To(Equal(map[string]any{"temperature": 0.2, "num_predict": float64(64)}))
	})

	It("reports error lines", func() {
		respond(`{"error":"model \"nope\" not found"}` + "\n")
		chunks := collect(llm.ChatRequest{Model: "nope"})
		Expect(chunks).To(Equal([]llm.Chunk{llm.ErrorChunk(`Ollama error: model "nope" not found`)}))
	})
})
