// Package configcmder provides the config command for reading and editing
// config.toml in the .chatmerge/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/cliui"
	"github.com/papercomputeco/chatmerge/pkg/config"
)

const configLongDesc string = `Read and edit chatmerge configuration.

Configuration is stored as config.toml in the .chatmerge/ directory. It
provides defaults for "chatmerge serve" and for the client commands.
Command line flags and CHATMERGE_* environment variables take precedence
over values in the file.

Keys use dotted notation matching the TOML sections:
  storage.*        driver, sqlite_path, postgres_dsn
  api.*            listen, disable_mcp
  client.*         api_target
  providers.*      default_provider, default_model, ollama_target
  vector_store.*   provider, target, path, collection
  embedding.*      provider, target, model, dimensions
  context.*        recency_threshold, recent_turns, top_k, fusion_threshold
  worker.*         num_workers, queue_size
  events.*         kafka_brokers, kafka_topic

Use subcommands to get, set or list values:
  chatmerge config set <key> <value>    Set a value
  chatmerge config get <key>            Print a value
  chatmerge config list                 Print every value

Examples:
  chatmerge config set providers.default_provider anthropic
  chatmerge config set vector_store.provider qdrant
  chatmerge config get context.top_k
  chatmerge config list`

const configShortDesc string = "Read and edit configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
