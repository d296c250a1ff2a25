package modelscmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	modelscmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/models"
)

var _ = Describe("Models command", func() {
	var (
		tmpDir string
		server *httptest.Server
		out    *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := modelscmder.NewModelsCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .chatmerge/ config directory")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SilenceUsage = true
		cmd.SetArgs(append(args, "--config-dir", tmpDir, "--api-target", server.URL))
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatmerge-models-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		out = &bytes.Buffer{}

		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/models", func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string][]string{
				"openai": {"gpt-4o", "gpt-4o-mini"},
				"ollama": {"llama3.2"},
			})
		})
		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)
	})

	It("lists providers in order with their default model marked", func() {
		Expect(execute()).To(Succeed())

		text := out.String()
		Expect(strings.Index(text, "ollama")).To(BeNumerically("<", strings.Index(text, "openai")))
		Expect(text).To(ContainSubstring("gpt-4o (default)"))
		Expect(text).NotTo(ContainSubstring("gpt-4o-mini (default)"))
	})

	It("filters by provider", func() {
		Expect(execute("--provider", "ollama")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("llama3.2"))
		Expect(out.String()).NotTo(ContainSubstring("openai"))
	})

	It("rejects an unknown provider", func() {
		Expect(execute("--provider", "mistral")).To(MatchError("unknown provider: mistral"))
	})
})
