// Package chatscmder provides the chats command for managing conversations
// on a running chatmerge API server.
package chatscmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/apiclient"
)

const chatsLongDesc string = `Manage conversations on a running chatmerge API server.

Use subcommands to list, create, show or delete chats:
  chatmerge chats list                 List every chat
  chatmerge chats create               Create an empty chat
  chatmerge chats show <id>            Print a chat and its messages
  chatmerge chats delete <id>...       Delete chats and their attachments

Examples:
  chatmerge chats list
  chatmerge chats create --title "Trip planning" --provider anthropic
  chatmerge chats delete 3f0c9a4e-...`

const chatsShortDesc string = "Manage conversations"

func NewChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: chatsShortDesc,
		Long:  chatsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

// clientCommand carries the API client shared by every chats subcommand.
type clientCommand struct {
	apiclient.Command
}

func (c *clientCommand) addFlags(cmd *cobra.Command) { c.AddFlags(cmd) }

func (c *clientCommand) connect(cmd *cobra.Command, args []string) error {
	return c.Connect(cmd, args)
}
