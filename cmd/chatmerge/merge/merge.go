// Package mergecmder provides the merge command, which fuses several chats
// into a new one on a running chatmerge API server.
package mergecmder

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/apiclient"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/merge"
)

const mergeLongDesc string = `Merge two or more chats into a new chat.

The server fuses the vector stores of the source chats into a namespace for
the merged chat. The merged chat starts empty and draws on the sources
through retrieval, so new questions are answered with the combined history.

Progress is streamed while the merge runs. The new chat ID is printed
when the merge completes.

Examples:
  chatmerge merge 3f0c9a4e-... 81b2d7c0-...
  chatmerge merge $(chatmerge chats list --quiet) --provider anthropic
  chatmerge merge a b c --provider ollama --model llama3.2`

const mergeShortDesc string = "Merge chats into a new chat"

type mergeCommander struct {
	apiclient.Command

	provider string
	model    string
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:     "merge <id> <id>...",
		Short:   mergeShortDesc,
		Long:    mergeLongDesc,
		Args:    cobra.MinimumNArgs(2),
		PreRunE: cmder.Connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	cmder.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "", "Provider of the merged chat (default: server default)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model of the merged chat (default: provider default)")

	return cmd
}

func (c *mergeCommander) run(cmd *cobra.Command, ids []string) error {
	out := cmd.OutOrStdout()

	stream, err := c.Client.Merge(cmd.Context(), merge.Request{
		SourceIDs: ids,
		Provider:  c.provider,
		Model:     c.model,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	return printProgress(out, stream)
}

// printProgress writes merge progress and returns an error when the
// stream ends with one or without a merged chat.
func printProgress(out io.Writer, stream iter.Seq[llm.Chunk]) error {
	var mergedID string

	for chunk := range stream {
		switch chunk.Type {
		case llm.ChunkContent:
			fmt.Fprint(out, indent(chunk.Data))
		case llm.ChunkWarning:
			fmt.Fprintf(out, "  %s %s\n", cliui.WarnStyle.Render("!"), cliui.WarnStyle.Render(chunk.Data))
		case llm.ChunkError:
			fmt.Fprintf(out, "\n  %s %s\n\n", cliui.FailMark, chunk.Data)
			return errors.New("merge failed: " + chunk.Data)
		case llm.ChunkMergeComplete:
			mergedID = chunk.Data
		}
	}

	if mergedID == "" {
		fmt.Fprintf(out, "\n  %s %s\n\n", cliui.FailMark, "merge ended without a merged chat")
		return errors.New("merge ended without a merged chat")
	}

	fmt.Fprintf(out, "\n  %s Merged chat %s\n", cliui.SuccessMark, cliui.IDStyle.Render(mergedID))
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Continue with: chatmerge chat "+mergedID))
	return nil
}

// indent prefixes each started line of s with two spaces. Progress text
// arrives with its own newlines, and blank lines stay blank.
func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line != "" && line != "\n" {
			b.WriteString("  ")
		}
		b.WriteString(line)
	}
	return b.String()
}
