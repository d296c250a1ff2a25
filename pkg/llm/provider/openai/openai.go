// Package openai streams completions from the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider/internal/transport"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/sse"
)

const (
	defaultBaseURL = "https://api.openai.com"

	// reasoningMaxTokens is the completion budget for o-series models when
	// the caller sets none.
	reasoningMaxTokens = 16384
)

// reasoningPrefixes identify the o-series models that take a developer role,
// a reasoning configuration and no temperature.
var reasoningPrefixes = []string{"o1", "o3", "o4-mini"}

var models = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"o4-mini",
	"o3",
	"o3-mini",
}

// Config configures the OpenAI provider.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider streams from OpenAI.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates an OpenAI provider.
func New(cfg Config) *Provider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
		logger:  log,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) RequiresKey() bool { return true }

func (p *Provider) Models() []string { return append([]string(nil), models...) }

// IsReasoningModel reports whether model belongs to the o-series.
func IsReasoningModel(model string) bool {
	model = strings.ToLower(model)
	for _, prefix := range reasoningPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) iter.Seq[llm.Chunk] {
	return func(yield func(llm.Chunk) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := transport.PostJSON(ctx, p.client, p.baseURL+"/v1/chat/completions", header, p.buildRequest(req))
		if err != nil {
			p.fail(yield, err)
			return
		}
		defer resp.Body.Close()

		reader := sse.NewReader(resp.Body)
		for {
			ev, err := reader.Next()
			if err != nil {
				p.fail(yield, err)
				return
			}
			if ev == nil || ev.Data == "[DONE]" {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				p.logger.Debug("skipping unparseable openai chunk", "error", err)
				continue
			}
			if chunk.Error != nil {
				p.fail(yield, fmt.Errorf("%s", chunk.Error.Message))
				return
			}

			for _, choice := range chunk.Choices {
				for _, text := range reasoningText(choice.Delta.Reasoning) {
					if !yield(llm.ReasoningChunk(text)) {
						return
					}
				}
				if choice.Delta.Content != "" {
					if !yield(llm.ContentChunk(choice.Delta.Content)) {
						return
					}
				}
			}
		}

		yield(llm.DoneChunk(""))
	}
}

func (p *Provider) fail(yield func(llm.Chunk) bool, err error) {
	p.logger.Error("openai streaming error", "error", err)
	yield(llm.ErrorChunk(fmt.Sprintf("OpenAI error: %v", err)))
}

func (p *Provider) buildRequest(req llm.ChatRequest) chatRequest {
	isReasoning := IsReasoningModel(req.Model)
	system, rest := llm.SplitSystem(req)

	messages := make([]chatMessage, 0, len(rest)+1)
	if system != "" {
		role := "system"
		if isReasoning {
			role = "developer"
		}
		messages = append(messages, chatMessage{Role: role, Content: system})
	}
	for _, m := range rest {
		messages = append(messages, convertMessage(m))
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}

	if isReasoning {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
		body.MaxCompletionTokens = req.MaxTokens
		if body.MaxCompletionTokens == 0 {
			body.MaxCompletionTokens = reasoningMaxTokens
		}
		body.Reasoning = &reasoning{Effort: "high", Summary: "auto"}
	} else {
		body.Temperature = req.Temperature
		body.MaxTokens = req.MaxTokens
	}

	return body
}

// convertMessage sends text-only messages as a plain string and everything
// else as content parts. Images become data URLs and files are inlined as text.
func convertMessage(m llm.Message) chatMessage {
	if !m.HasAttachments() {
		return chatMessage{Role: m.Role, Content: m.GetText()}
	}

	parts := make([]contentPart, 0, len(m.Content))
	for _, block := range m.Content {
		switch block.Type {
		case llm.BlockText:
			if block.Text != "" {
				parts = append(parts, contentPart{Type: "text", Text: block.Text})
			}
		case llm.BlockImage:
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: "data:" + block.MediaType + ";base64," + block.Data},
			})
		case llm.BlockFile:
			parts = append(parts, contentPart{Type: "text", Text: block.FileText()})
		}
	}

	return chatMessage{Role: m.Role, Content: parts}
}

// reasoningText decodes a reasoning delta, which arrives as a plain string,
// an object with a list of summary parts, or an object with a summary or
// content string.
func reasoningText(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var obj reasoningSummary
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(obj.Summary, &parts); err == nil {
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part.Text != "" {
				out = append(out, part.Text)
			}
		}
		return out
	}

	var summary string
	if err := json.Unmarshal(obj.Summary, &summary); err == nil && summary != "" {
		return []string{summary}
	}
	if obj.Content != "" {
		return []string{obj.Content}
	}
	return nil
}
