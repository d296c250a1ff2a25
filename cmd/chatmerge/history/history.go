// Package historycmder provides the history command, which lists completed
// merges.
package historycmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/apiclient"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
	"github.com/papercomputeco/chatmerge/pkg/storage"
)

const historyLongDesc string = `List completed merges, newest first.

Each row shows the merged chat, the chats it was merged from and the model
the merged chat answers with.

Examples:
  chatmerge history
  chatmerge history --api-target http://localhost:9000`

const historyShortDesc string = "List completed merges"

type historyCommander struct {
	apiclient.Command
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:     "history",
		Short:   historyShortDesc,
		Long:    historyLongDesc,
		Args:    cobra.NoArgs,
		PreRunE: cmder.Connect,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := cmder.Client.MergeHistory(cmd.Context())
			if err != nil {
				return err
			}

			renderHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmder.AddFlags(cmd)

	return cmd
}

func renderHistory(w io.Writer, records []*storage.MergeRecord) {
	if len(records) == 0 {
		fmt.Fprintf(w, "\n  %s No merges yet. Use 'chatmerge merge <id> <id>...' to merge chats.\n\n", cliui.DimStyle.Render("●"))
		return
	}

	t := cliui.NewTable(
		cliui.Column{Title: "MERGED CHAT", Width: 36, Style: cliui.IDStyle},
		cliui.Column{Title: "SOURCES", Width: 60, Style: cliui.ValueStyle},
		cliui.Column{Title: "MODEL", Width: 36, Style: cliui.ValueStyle},
		cliui.Column{Title: "CREATED", Style: cliui.DimStyle},
	)

	for _, rec := range records {
		t.Row(
			rec.ResultChatID,
			strings.Join(rec.SourceChatIDs, ", "),
			rec.MergeProvider+"/"+rec.MergeModel,
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}

	fmt.Fprintln(w)
	t.Render(w)
	fmt.Fprintln(w)
}
