package chatscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/cliui"
)

const deleteLongDesc string = `Delete one or more chats.

Deleting a chat removes its messages and attachments. Its vector namespace
is removed in the background by the server.

Examples:
  chatmerge chats delete 3f0c9a4e-...
  chatmerge chats delete $(chatmerge chats list --quiet)`

const deleteShortDesc string = "Delete chats"

func newDeleteCmd() *cobra.Command {
	c := &clientCommand{}

	cmd := &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   deleteShortDesc,
		Long:    deleteLongDesc,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: c.connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out)

			var failed int
			for _, id := range args {
				err := c.Client.DeleteChat(cmd.Context(), id)
				if err != nil {
					failed++
					fmt.Fprintf(out, "  %s %s %s\n", cliui.FailMark, cliui.IDStyle.Render(id), cliui.DimStyle.Render(err.Error()))
					continue
				}
				fmt.Fprintf(out, "  %s Deleted %s\n", cliui.SuccessMark, cliui.IDStyle.Render(id))
			}
			fmt.Fprintln(out)

			if failed > 0 {
				return fmt.Errorf("failed to delete %d of %d chats", failed, len(args))
			}
			return nil
		},
	}

	c.addFlags(cmd)

	return cmd
}
