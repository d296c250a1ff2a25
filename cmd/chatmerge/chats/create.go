package chatscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/api"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
)

const createLongDesc string = `Create an empty chat.

Without --provider the server's default provider is used. Without --model
the provider's default model is used.

Examples:
  chatmerge chats create
  chatmerge chats create --title "Go generics" --provider ollama --model llama3.2
  chatmerge chats create --system-prompt "Answer in French."`

const createShortDesc string = "Create an empty chat"

func newCreateCmd() *cobra.Command {
	c := &clientCommand{}
	var req api.CreateChatRequest
	var quiet bool

	cmd := &cobra.Command{
		Use:     "create",
		Short:   createShortDesc,
		Long:    createLongDesc,
		Args:    cobra.NoArgs,
		PreRunE: c.connect,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chat, err := c.Client.CreateChat(cmd.Context(), req)
			if err != nil {
				return err
			}

			if quiet {
				fmt.Fprintln(cmd.OutOrStdout(), chat.ID)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Created %s %s\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(chat.Title),
				cliui.DimStyle.Render(fmt.Sprintf("(%s/%s)", chat.Provider, chat.Model)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n\n",
				cliui.KeyStyle.Render("ID:"),
				cliui.IDStyle.Render(chat.ID),
			)
			return nil
		},
	}

	c.addFlags(cmd)
	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "Chat title (default: New Chat)")
	cmd.Flags().StringVarP(&req.Provider, "provider", "p", "", "Model provider (openai, anthropic, gemini, ollama)")
	cmd.Flags().StringVarP(&req.Model, "model", "m", "", "Model name")
	cmd.Flags().StringVar(&req.SystemPrompt, "system-prompt", "", "System prompt sent with every completion")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the new chat ID")

	return cmd
}
