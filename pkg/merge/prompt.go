package merge

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/utils"
)

const (
	synopsisMessages   = 6
	synopsisEdge       = 3
	synopsisContentLen = 200

	introMaxTokens = 300
)

const introPrompt = `You are the assistant inside a newly merged AI chat. Two separate conversations have been intelligently combined into a single semantic memory that you can search.

Below are brief excerpts from the two conversations. Write a SHORT (2-4 sentence) intro message that:
1. States which conversations were merged and their main topics
2. Tells the user they can ask anything from either conversation
3. Is warm and direct — no fluff

## Conversation 1: "%s"
%s

## Conversation 2: "%s"
%s

Write ONLY the brief intro message (no labels, no prefix, just the text):`

// IntroPrompt builds the introduction request from the first two sources.
// A single source fills the second slot with a placeholder.
func IntroPrompt(titles []string, synopses []string) string {
	title2, synopsis2 := "Other conversations", "(none)"
	if len(titles) > 1 && len(synopses) > 1 {
		title2, synopsis2 = titles[1], synopses[1]
	}

	title1, synopsis1 := "", "(no messages)"
	if len(titles) > 0 {
		title1 = titles[0]
	}
	if len(synopses) > 0 {
		synopsis1 = synopses[0]
	}

	return fmt.Sprintf(introPrompt, title1, synopsis1, title2, synopsis2)
}

// Synopsis renders a short excerpt of turns: all of them when there are few,
// otherwise the first and last three. Context markers are skipped.
func Synopsis(turns []*storage.Turn) string {
	subset := turns
	if len(turns) > synopsisMessages {
		subset = append(append([]*storage.Turn(nil), turns[:synopsisEdge]...), turns[len(turns)-synopsisEdge:]...)
	}

	lines := make([]string, 0, len(subset))
	for _, t := range subset {
		if t.IsContextMarker() {
			continue
		}

		label := "Assistant"
		if t.Role == storage.RoleUser {
			label = "User"
		}
		lines = append(lines, label+": "+utils.Truncate(t.Content, synopsisContentLen))
	}

	if len(lines) == 0 {
		return "(no messages)"
	}
	return strings.Join(lines, "\n")
}

// Title names the merged conversation.
func Title(titles []string) string {
	return "Merged: " + strings.Join(titles, ", ")
}

// SystemPrompt describes the merged conversation to its model.
func SystemPrompt(titles []string) string {
	return fmt.Sprintf(
		"You are a merged AI assistant with access to semantically fused context from %d conversations: %s. "+
			"Use retrieved context to answer queries. "+
			"The user may ask about topics from any of the merged conversations.",
		len(titles), strings.Join(titles, ", "),
	)
}

// TemplateIntro is used when the introduction cannot be generated.
func TemplateIntro(titles []string) string {
	return fmt.Sprintf(
		"I've merged **%s** into a unified semantic memory. "+
			"Ask me anything that was covered in either conversation — I'll retrieve the most relevant context automatically.",
		strings.Join(titles, ", "),
	)
}
