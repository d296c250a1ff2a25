package chatscmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/api"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
)

const listShortDesc string = "List every chat"

// idWidth shows enough of a UUID to pass it back to other commands.
const idWidth = 36

func newListCmd() *cobra.Command {
	c := &clientCommand{}
	var quiet bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   listShortDesc,
		Args:    cobra.NoArgs,
		PreRunE: c.connect,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chats, err := c.Client.ListChats(cmd.Context())
			if err != nil {
				return err
			}

			if quiet {
				for _, chat := range chats {
					fmt.Fprintln(cmd.OutOrStdout(), chat.ID)
				}
				return nil
			}

			renderChats(cmd.OutOrStdout(), chats)
			return nil
		},
	}

	c.addFlags(cmd)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only chat IDs, one per line")

	return cmd
}

func renderChats(w io.Writer, chats []api.ChatResponse) {
	if len(chats) == 0 {
		fmt.Fprintf(w, "\n  %s No chats yet. Use 'chatmerge chats create' to start one.\n\n", cliui.DimStyle.Render("●"))
		return
	}

	t := cliui.NewTable(
		cliui.Column{Title: "ID", Width: idWidth, Style: cliui.IDStyle},
		cliui.Column{Title: "TITLE", Width: 40, Style: cliui.NameStyle},
		cliui.Column{Title: "PROVIDER", Style: cliui.ValueStyle},
		cliui.Column{Title: "MODEL", Width: 28, Style: cliui.ValueStyle},
		cliui.Column{Title: "MESSAGES", Style: cliui.DimStyle},
		cliui.Column{Title: "UPDATED", Style: cliui.DimStyle},
	)

	for _, chat := range chats {
		title := chat.Title
		if chat.Fused {
			title = "⊕ " + title
		}
		t.Row(
			chat.ID,
			title,
			chat.Provider,
			chat.Model,
			strconv.Itoa(chat.MessageCount),
			chat.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}

	fmt.Fprintln(w)
	t.Render(w)
	fmt.Fprintln(w)
}
