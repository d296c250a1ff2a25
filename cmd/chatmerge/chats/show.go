package chatscmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/api"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
	"github.com/papercomputeco/chatmerge/pkg/storage"
)

const showLongDesc string = `Print a chat and its messages, oldest first.

Assistant replies are rendered as markdown unless --raw is set.

Examples:
  chatmerge chats show 3f0c9a4e-...
  chatmerge chats show 3f0c9a4e-... --raw`

const showShortDesc string = "Print a chat and its messages"

func newShowCmd() *cobra.Command {
	c := &clientCommand{}
	var raw bool

	cmd := &cobra.Command{
		Use:     "show <id>",
		Short:   showShortDesc,
		Long:    showLongDesc,
		Args:    cobra.ExactArgs(1),
		PreRunE: c.connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := c.Client.GetChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			renderChat(cmd.OutOrStdout(), chat, raw)
			return nil
		},
	}

	c.addFlags(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "Print replies without markdown rendering")

	return cmd
}

func renderChat(w io.Writer, chat *api.ChatResponse, raw bool) {
	fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render(chat.Title))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("ID:      "), cliui.IDStyle.Render(chat.ID))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Model:   "), cliui.ValueStyle.Render(chat.Provider+"/"+chat.Model))
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Messages:"), cliui.ValueStyle.Render(fmt.Sprint(chat.MessageCount)))
	if chat.Fused {
		fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Merged:  "), cliui.DimStyle.Render("context is retrieved from the merged sources"))
	}
	fmt.Fprintln(w)

	for _, turn := range chat.Messages {
		renderTurn(w, turn, raw)
	}
}

func renderTurn(w io.Writer, turn *storage.Turn, raw bool) {
	fmt.Fprintf(w, "  %s %s\n",
		cliui.RoleStyle.Render("["+turn.Role+"]"),
		cliui.DimStyle.Render(turn.CreatedAt.Local().Format("2006-01-02 15:04")),
	)

	content := turn.Content
	switch {
	case turn.IsContextMarker():
		content = cliui.DimStyle.Render(content)
	case turn.Role == storage.RoleAssistant && !raw:
		if rendered, err := cliui.RenderMarkdown(content); err == nil {
			content = strings.TrimRight(rendered, "\n")
		}
	}
	fmt.Fprintln(w, content)

	for _, a := range turn.Attachments {
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.DimStyle.Render("📎"),
			cliui.ValueStyle.Render(a.Filename),
			cliui.DimStyle.Render(fmt.Sprintf("(%s, %d bytes)", a.MimeType, a.Size)),
		)
	}
	fmt.Fprintln(w)
}
