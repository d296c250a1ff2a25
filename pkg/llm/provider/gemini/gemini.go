// Package gemini streams completions from the Gemini generative language API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider/internal/transport"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/sse"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

var models = []string{
	"gemini-2.0-flash",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
}

// Config configures the Gemini provider.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider streams from Gemini.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a Gemini provider.
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

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) RequiresKey() bool { return true }

func (p *Provider) Models() []string { return append([]string(nil), models...) }

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) iter.Seq[llm.Chunk] {
	return func(yield func(llm.Chunk) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		header := http.Header{}
		header.Set("x-goog-api-key", p.apiKey)

		endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, url.PathEscape(req.Model))
		resp, err := transport.PostJSON(ctx, p.client, endpoint, header, buildRequest(req))
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

			var chunk generateResponse
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				p.logger.Debug("skipping unparseable gemini chunk", "error", err)
				continue
			}
			if chunk.Error != nil {
				p.fail(yield, fmt.Errorf("%s", chunk.Error.Message))
				return
			}

			for _, candidate := range chunk.Candidates {
				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					c := llm.ContentChunk(part.Text)
					if part.Thought {
						c = llm.ReasoningChunk(part.Text)
					}
					if !yield(c) {
						return
					}
				}
			}
		}

		yield(llm.DoneChunk(""))
	}
}

func (p *Provider) fail(yield func(llm.Chunk) bool, err error) {
	p.logger.Error("gemini streaming error", "error", err)
	yield(llm.ErrorChunk(fmt.Sprintf("Gemini error: %v", err)))
}

func buildRequest(req llm.ChatRequest) generateRequest {
	system, rest := llm.SplitSystem(req)

	body := generateRequest{
		Contents: make([]content, 0, len(rest)),
	}

	for _, m := range rest {
		body.Contents = append(body.Contents, convertMessage(m))
	}

	if system != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}

	if req.Temperature != nil || req.MaxTokens > 0 {
		body.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	return body
}

// convertMessage maps assistant turns to the "model" role and sends images
// as inline data.
func convertMessage(m llm.Message) content {
	role := m.Role
	if role == llm.RoleAssistant {
		role = "model"
	}

	parts := make([]part, 0, len(m.Content))
	for _, b := range m.Content {
		switch b.Type {
		case llm.BlockText:
			if b.Text != "" {
				parts = append(parts, part{Text: b.Text})
			}
		case llm.BlockImage:
			parts = append(parts, part{InlineData: &inlineData{MimeType: b.MediaType, Data: b.Data}})
		case llm.BlockFile:
			parts = append(parts, part{Text: b.FileText()})
		}
	}

	if len(parts) == 0 {
		parts = append(parts, part{Text: " "})
	}

	return content{Role: role, Parts: parts}
}
