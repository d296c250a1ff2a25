// Package llm holds the provider-agnostic message and streaming types shared
// by the completion and merge pipelines.
package llm

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText  = "text"
	BlockImage = "image"
	BlockFile  = "file"
)

// Message represents a single message in a conversation.
// Content is stored as an array of ContentBlocks so attachments travel
// alongside text in a provider-agnostic way.
type Message struct {
	Role    string         `json:"role"`    // "system", "user", "assistant"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
// The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "file"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Attachment content (type="image" or type="file")
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"` // MIME type (e.g., "image/png")
	Data      string `json:"data,omitempty"`       // Base64-encoded bytes
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: BlockText, Text: text},
		},
	}
}

// GetText returns the concatenated text content from all text blocks in the message.
func (m Message) GetText() string {
	var b strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// HasAttachments reports whether any block carries an image or file.
func (m Message) HasAttachments() bool {
	for _, block := range m.Content {
		if block.Type == BlockImage || block.Type == BlockFile {
			return true
		}
	}
	return false
}

// NewAttachmentBlock builds an image block for image MIME types and a file
// block for everything else.
func NewAttachmentBlock(filename, mediaType string, data []byte) ContentBlock {
	typ := BlockFile
	if strings.HasPrefix(mediaType, "image/") {
		typ = BlockImage
	}
	return ContentBlock{
		Type:      typ,
		Filename:  filename,
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}
}

// FileText renders a file block as text for providers without native file
// input. Textual files are inlined under a "[File: name]" header; anything
// else becomes a one-line placeholder.
func (b ContentBlock) FileText() string {
	if isTextual(b.MediaType) {
		raw, err := base64.StdEncoding.DecodeString(b.Data)
		if err == nil && utf8.Valid(raw) {
			return fmt.Sprintf("[File: %s]\n%s", b.Filename, raw)
		}
	}
	return fmt.Sprintf("[Attached file: %s (%s)]", b.Filename, b.MediaType)
}

func isTextual(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml":
		return true
	}
	return false
}

// SplitSystem folds system-role messages into the request's system prompt.
// It returns the combined prompt and the remaining messages in order.
func SplitSystem(req ChatRequest) (string, []Message) {
	parts := make([]string, 0, 1)
	if req.System != "" {
		parts = append(parts, req.System)
	}

	rest := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if text := m.GetText(); text != "" {
				parts = append(parts, text)
			}
			continue
		}
		rest = append(rest, m)
	}

	return strings.Join(parts, "\n\n"), rest
}
