// Package chatmergecmder is the root of the chatmerge command tree.
package chatmergecmder

import (
	"os"

	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/auth"
	chatcmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/chat"
	chatscmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/chats"
	configcmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/config"
	historycmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/history"
	initcmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/init"
	mergecmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/merge"
	modelscmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/models"
	servecmder "github.com/papercomputeco/chatmerge/cmd/chatmerge/serve"
	versioncmder "github.com/papercomputeco/chatmerge/cmd/version"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
)

const chatmergeLongDesc string = `chatmerge keeps conversations with several model providers and merges
them into one.

Run the server and talk to it:
  chatmerge serve                     Run the API server
  chatmerge chats create              Create a chat
  chatmerge chat <id>                 Talk to a chat
  chatmerge merge <id> <id>...        Merge chats into a new chat

Configure it:
  chatmerge init --preset <name>      Create a local .chatmerge/ directory
  chatmerge auth <provider>           Store an API key
  chatmerge config set <key> <value>  Change a setting`

const chatmergeShortDesc string = "chatmerge - merge conversations across model providers"

func NewChatmergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatmerge",
		Short:         chatmergeShortDesc,
		Long:          chatmergeLongDesc,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			cliui.ConfigureColor(os.Stdout)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chatmerge/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatscmder.NewChatsCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(mergecmder.NewMergeCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
