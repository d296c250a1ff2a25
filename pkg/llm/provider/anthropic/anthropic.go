// Package anthropic streams completions from the Anthropic Messages API.
package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 8192
)

var models = []string{
	"claude-sonnet-4-20250514",
	"claude-haiku-4-20250414",
	"claude-opus-4-20250514",
}

// Config configures the Anthropic provider.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider streams from Anthropic.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates an Anthropic provider.
func New(cfg Config) *Provider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

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

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) RequiresKey() bool { return true }

func (p *Provider) Models() []string { return append([]string(nil), models...) }

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) iter.Seq[llm.Chunk] {
	return func(yield func(llm.Chunk) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		header := http.Header{}
		header.Set("x-api-key", p.apiKey)
		header.Set("anthropic-version", apiVersion)

		resp, err := transport.PostJSON(ctx, p.client, p.baseURL+"/v1/messages", header, buildRequest(req))
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
			if ev == nil {
				break
			}

			var event streamEvent
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				p.logger.Debug("skipping unparseable anthropic event", "event", ev.Type, "error", err)
				continue
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				switch event.Delta.Type {
				case "text_delta":
					if event.Delta.Text != "" && !yield(llm.ContentChunk(event.Delta.Text)) {
						return
					}
				case "thinking_delta":
					if event.Delta.Thinking != "" && !yield(llm.ReasoningChunk(event.Delta.Thinking)) {
						return
					}
				}
			case "error":
				msg := "unknown error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				p.fail(yield, fmt.Errorf("%s", msg))
				return
			case "message_stop":
				yield(llm.DoneChunk(""))
				return
			}
		}

		yield(llm.DoneChunk(""))
	}
}

func (p *Provider) fail(yield func(llm.Chunk) bool, err error) {
	p.logger.Error("anthropic streaming error", "error", err)
	yield(llm.ErrorChunk(fmt.Sprintf("Anthropic error: %v", err)))
}

func buildRequest(req llm.ChatRequest) messagesRequest {
	system, rest := llm.SplitSystem(req)

	messages := make([]message, 0, len(rest))
	for _, m := range rest {
		messages = append(messages, convertMessage(m))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return messagesRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
}

// convertMessage maps images to base64 source blocks and files to text.
func convertMessage(m llm.Message) message {
	blocks := make([]block, 0, len(m.Content))
	for _, b := range m.Content {
		switch b.Type {
		case llm.BlockText:
			if b.Text != "" {
				blocks = append(blocks, block{Type: "text", Text: b.Text})
			}
		case llm.BlockImage:
			blocks = append(blocks, block{
				Type:   "image",
				Source: &imageSource{Type: "base64", MediaType: b.MediaType, Data: b.Data},
			})
		case llm.BlockFile:
			blocks = append(blocks, block{Type: "text", Text: b.FileText()})
		}
	}

	// The API rejects empty content arrays.
	if len(blocks) == 0 {
		blocks = append(blocks, block{Type: "text", Text: " "})
	}

	return message{Role: m.Role, Content: blocks}
}
