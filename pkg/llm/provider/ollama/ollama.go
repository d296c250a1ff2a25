package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider/internal/transport"
	"github.com/papercomputeco/chatmerge/pkg/logger"
)

const defaultBaseURL = "http://localhost:11434"

var defaultModels = []string{"llama3.2", "qwen3", "gpt-oss"}

// Config configures the Ollama provider.
type Config struct {
	BaseURL    string
	Models     []string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider streams from a local Ollama server. It needs no API key.
type Provider struct {
	baseURL string
	models  []string
	client  *http.Client
	logger  *slog.Logger
}

// New creates an Ollama provider.
func New(cfg Config) *Provider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	models := cfg.Models
	if len(models) == 0 {
		models = defaultModels
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
		baseURL: baseURL,
		models:  models,
		client:  client,
		logger:  log,
	}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) RequiresKey() bool { return false }

func (p *Provider) Models() []string { return append([]string(nil), p.models...) }

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) iter.Seq[llm.Chunk] {
	return func(yield func(llm.Chunk) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		resp, err := transport.PostJSON(ctx, p.client, p.baseURL+"/api/chat", nil, buildRequest(req))
		if err != nil {
			p.fail(yield, err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				p.logger.Debug("skipping unparseable ollama line", "error", err)
				continue
			}
			if chunk.Error != "" {
				p.fail(yield, errors.New(chunk.Error))
				return
			}

			if chunk.Message.Thinking != "" && !yield(llm.ReasoningChunk(chunk.Message.Thinking)) {
				return
			}
			if chunk.Message.Content != "" && !yield(llm.ContentChunk(chunk.Message.Content)) {
				return
			}
			if chunk.Done {
				break
			}
		}

		if err := scanner.Err(); err != nil {
			p.fail(yield, err)
			return
		}

		yield(llm.DoneChunk(""))
	}
}

func (p *Provider) fail(yield func(llm.Chunk) bool, err error) {
	p.logger.Error("ollama streaming error", "error", err)
	yield(llm.ErrorChunk(fmt.Sprintf("Ollama error: %v", err)))
}

func buildRequest(req llm.ChatRequest) chatRequest {
	system, rest := llm.SplitSystem(req)

	messages := make([]chatMessage, 0, len(rest)+1)
	if system != "" {
		messages = append(messages, chatMessage{Role: llm.RoleSystem, Content: system})
	}

	for _, m := range rest {
		msg := chatMessage{Role: m.Role}
		var text []string
		for _, b := range m.Content {
			switch b.Type {
			case llm.BlockText:
				if b.Text != "" {
					text = append(text, b.Text)
				}
			case llm.BlockImage:
				msg.Images = append(msg.Images, b.Data)
			case llm.BlockFile:
				text = append(text, b.FileText())
			}
		}
		msg.Content = strings.Join(text, "\n\n")
		messages = append(messages, msg)
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	return body
}
