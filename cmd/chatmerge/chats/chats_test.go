package chatscmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmerge/api"
	chatscmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/chats"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/storage"
)

var _ = Describe("NewChatsCmd", func() {
	It("has list, create, show and delete subcommands", func() {
		cmd := chatscmder.NewChatsCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("list", "create", "show", "delete"))
	})
})

var _ = Describe("Chats command execution", func() {
	var (
		tmpDir string
		mux    *http.ServeMux
		server *httptest.Server
		out    *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := chatscmder.NewChatsCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .chatmerge/ config directory")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(append(args, "--config-dir", tmpDir, "--api-target", server.URL))
		cmd.SilenceUsage = true
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatmerge-chats-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		mux = http.NewServeMux()
		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)

		out = &bytes.Buffer{}
	})

	chats := []api.ChatResponse{
		{
			Conversation: &storage.Conversation{
				ID: "c1", Title: "Go generics", Provider: "ollama", Model: "llama3.2", UpdatedAt: time.Now(),
			},
			MessageCount: 4,
		},
		{
			Conversation: &storage.Conversation{
				ID: "c2", Title: "Merged", Provider: "openai", Model: "gpt-4o", Fused: true, UpdatedAt: time.Now(),
			},
		},
	}

	Describe("list", func() {
		BeforeEach(func() {
			mux.HandleFunc("GET /api/chats", func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(chats)
			})
		})

		It("prints a table of chats", func() {
			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Go generics"))
			Expect(out.String()).To(ContainSubstring("⊕ Merged"))
			Expect(out.String()).To(ContainSubstring("llama3.2"))
		})

		It("prints only IDs with --quiet", func() {
			Expect(execute("list", "--quiet")).To(Succeed())
			Expect(out.String()).To(Equal("c1\nc2\n"))
		})
	})

	It("lists nothing helpfully", func() {
		mux.HandleFunc("GET /api/chats", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("[]"))
		})
		Expect(execute("list")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No chats yet"))
	})

	It("creates a chat with the given options", func() {
		var got api.CreateChatRequest
		mux.HandleFunc("POST /api/chats", func(w http.ResponseWriter, r *http.Request) {
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(api.ChatResponse{Conversation: &storage.Conversation{ID: "new"}})
		})

		Expect(execute("create", "--title", "Plans", "--provider", "anthropic", "--quiet")).To(Succeed())
		Expect(got.Title).To(Equal("Plans"))
		Expect(got.Provider).To(Equal("anthropic"))
		Expect(out.String()).To(Equal("new\n"))
	})

	It("shows a chat with its messages", func() {
		mux.HandleFunc("GET /api/chats/{id}", func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(api.ChatResponse{
				Conversation: chats[0].Conversation,
				MessageCount: 2,
				Messages: []*storage.Turn{
					{ID: "t1", Role: storage.RoleUser, Content: "What are type parameters?"},
					{ID: "t2", Role: storage.RoleAssistant, Content: "They generalize functions."},
				},
			})
		})

		Expect(execute("show", "c1", "--raw")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Go generics"))
		Expect(out.String()).To(ContainSubstring("[user]"))
		Expect(out.String()).To(ContainSubstring("They generalize functions."))
	})

	It("deletes chats and reports failures", func() {
		var deleted []string
		mux.HandleFunc("DELETE /api/chats/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := r.PathValue("id")
			if id == "missing" {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(llm.ErrorResponse{Error: "Chat missing not found"})
				return
			}
			deleted = append(deleted, id)
			w.WriteHeader(http.StatusNoContent)
		})

		err := execute("delete", "c1", "missing", "c2")
		Expect(err).To(MatchError(ContainSubstring("failed to delete 1 of 3 chats")))
		Expect(deleted).To(Equal([]string{"c1", "c2"}))
		Expect(out.String()).To(ContainSubstring("Chat missing not found"))
	})

	It("requires at least one ID to delete", func() {
		Expect(execute("delete")).To(HaveOccurred())
	})

	It("reports an unreachable server", func() {
		server.Close()
		err := execute("list")
		Expect(err).To(HaveOccurred())
		Expect(strings.ToLower(err.Error())).To(ContainSubstring("failed to connect"))
	})
})
