package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/config"
	"github.com/papercomputeco/chatmerge/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		subcommands := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})

	It("completes config keys for get", func() {
		cmd := configcmder.NewConfigCmd()
		get, _, err := cmd.Find([]string{"get"})
		Expect(err).NotTo(HaveOccurred())

		keys, directive := get.ValidArgsFunction(get, nil, "")
		Expect(keys).To(ContainElement("context.top_k"))
		Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .chatmerge/ config directory")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SilenceUsage = true
		cmd.SetArgs(append(args, "--config-dir", tmpDir))
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatmerge-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		out = &bytes.Buffer{}
	})

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			Expect(execute("set", "providers.default_provider", "anthropic")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Set providers.default_provider = anthropic"))

			cfger, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Providers.DefaultProvider).To(Equal("anthropic"))

			_, err = os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "proxy.provider", "anthropic")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "api.listen")).To(HaveOccurred())
			Expect(execute("set")).To(HaveOccurred())
		})

		It("rejects invalid numeric values", func() {
			Expect(execute("set", "embedding.dimensions", "not-a-number")).To(HaveOccurred())
			Expect(execute("set", "context.fusion_threshold", "1.5")).To(HaveOccurred())
		})

		It("rejects invalid boolean values", func() {
			Expect(execute("set", "api.disable_mcp", "sometimes")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("prints a previously set value", func() {
			Expect(execute("set", "context.top_k", "12")).To(Succeed())
			out.Reset()

			Expect(execute("get", "context.top_k")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("context.top_k  12"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(execute("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("prints every key", func() {
			Expect(execute("set", "vector_store.provider", "qdrant")).To(Succeed())
			out.Reset()

			Expect(execute("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(MatchRegexp(`vector_store\.provider\s+qdrant`))
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).To(HaveOccurred())
		})
	})
})
