// Package initcmder provides the init command for creating a local
// .chatmerge directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/cliui"
	"github.com/papercomputeco/chatmerge/pkg/config"
)

const dirName = ".chatmerge"

// fetchTimeout bounds the download of a remote preset.
const fetchTimeout = 30 * time.Second

const initLongDesc string = `Initialize a .chatmerge/ directory in the current working directory.

A local .chatmerge/ directory takes precedence over ~/.chatmerge/ for the
configuration, credentials, database, vector files and uploads of every
chatmerge command run below it.

A config.toml with defaults is written when none exists. Use --preset to
write the config of a provider preset (openai, anthropic, gemini, ollama)
or of a config.toml fetched from a URL. A preset always replaces an
existing config.toml.

Examples:
  chatmerge init
  chatmerge init --preset anthropic
  chatmerge init --preset https://example.com/team/config.toml`

const initShortDesc string = "Initialize a local .chatmerge/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .chatmerge directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var cfg *config.Config
	switch {
	case preset == "":
		if _, err := os.Stat(cfger.GetTarget()); err == nil {
			fmt.Fprintf(w, "\n  %s Already initialized: %s\n\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
			return nil
		}
		cfg = config.NewDefaultConfig()

	case isURL(preset):
		cfg, err = fetchRemoteConfig(ctx, preset)
		if err != nil {
			return err
		}

	default:
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "\n  %s Initialized %s\n", cliui.SuccessMark, cliui.NameStyle.Render(dir))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Config:  "), cliui.DimStyle.Render(cfger.GetTarget()))
	fmt.Fprintf(w, "  %s %s\n\n", cliui.KeyStyle.Render("Provider:"), cliui.ValueStyle.Render(cfg.Providers.DefaultProvider))
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing remote config: %w", err)
	}
	return cfg, nil
}
