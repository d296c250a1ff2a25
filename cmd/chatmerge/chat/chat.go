// Package chatcmder provides the chat command for an interactive session
// with a chat on a running chatmerge API server.
package chatcmder

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/apiclient"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
	"github.com/papercomputeco/chatmerge/pkg/completion"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/logger"
)

var (
	userPromptStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	assistantPromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type chatCommander struct {
	apiclient.Command

	markdown bool
	debug    bool

	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive session with a chat.

Every message is sent to the chat's provider and model. The server adds
context retrieved from earlier messages and, for merged chats, from the
merged source chats. Replies are streamed as they are generated.

Use --markdown to render each reply with markdown once it is complete.

Type /exit or press Ctrl+D to quit.

Examples:
  chatmerge chat 3f0c9a4e-...
  chatmerge chat 3f0c9a4e-... --markdown`

const chatShortDesc string = "Interactive session with a chat"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:     "chat <id>",
		Short:   chatShortDesc,
		Long:    chatLongDesc,
		Args:    cobra.ExactArgs(1),
		PreRunE: cmder.Connect,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd, args[0])
		},
	}

	cmder.AddFlags(cmd)
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render each reply as markdown when it completes")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command, chatID string) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(cmd.ErrOrStderr()))
	out := cmd.OutOrStdout()

	chat, err := c.Client.GetChat(cmd.Context(), chatID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(chat.Title),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", chat.MessageCount)),
	)
	fmt.Fprintf(out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.ValueStyle.Render(chat.Provider+"/"+chat.Model),
	)
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(cmd.InOrStdin())

	for {
		fmt.Fprint(out, userPromptStyle.Render("you> "))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		if err := c.sendAndStream(cmd, out, chatID, input); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s %v\n", cliui.FailMark, err)
			continue
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(out)
	return nil
}

// sendAndStream sends one message and prints the reply as it streams.
// With --markdown the reply is buffered and rendered once complete.
func (c *chatCommander) sendAndStream(cmd *cobra.Command, out io.Writer, chatID, content string) error {
	c.logger.Debug("sending completion",
		"chat_id", chatID,
		"content_length", len(content),
	)

	stream, err := c.Client.Complete(cmd.Context(), chatID, completion.Request{Content: content})
	if err != nil {
		return err
	}

	fmt.Fprint(out, assistantPromptStyle.Render("assistant> "))

	var (
		reply     strings.Builder
		reasoning bool
	)
	for chunk := range stream {
		switch chunk.Type {
		case llm.ChunkReasoning:
			if !c.markdown {
				fmt.Fprint(out, cliui.DimStyle.Render(chunk.Data))
				reasoning = true
			}
		case llm.ChunkContent:
			if reasoning {
				fmt.Fprint(out, "\n\n")
				reasoning = false
			}
			reply.WriteString(chunk.Data)
			if !c.markdown {
				fmt.Fprint(out, chunk.Data)
			}
		case llm.ChunkWarning:
			c.logger.Warn("completion warning", "message", chunk.Data)
		case llm.ChunkError:
			fmt.Fprintln(out)
			return fmt.Errorf("completion failed: %s", chunk.Data)
		case llm.ChunkDone:
			c.logger.Debug("completion done", "turn_id", chunk.Data)
		}
	}

	if c.markdown {
		rendered, err := cliui.RenderMarkdown(reply.String())
		if err != nil {
			fmt.Fprint(out, reply.String())
			return nil
		}
		fmt.Fprint(out, "\n"+strings.TrimRight(rendered, "\n"))
	}
	return nil
}
