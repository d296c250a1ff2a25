// Package apiclient is the HTTP client the chatmerge CLI uses to talk to a
// running chatmerge API server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/papercomputeco/chatmerge/api"
	"github.com/papercomputeco/chatmerge/pkg/completion"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/merge"
	"github.com/papercomputeco/chatmerge/pkg/sse"
	"github.com/papercomputeco/chatmerge/pkg/storage"
)

// DefaultTimeout bounds a whole request, including a streamed answer.
const DefaultTimeout = 5 * time.Minute

// Options configures a Client. Environment variables override the values
// a caller loaded from config.toml.
type Options struct {
	// Target is the API server URL (scheme + host + port).
	Target string `env:"CHATMERGE_CLIENT_API_TARGET"`

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration `env:"CHATMERGE_CLIENT_TIMEOUT"`
}

// LoadOptions returns Options seeded with target and overridden by any
// CHATMERGE_CLIENT_* environment variables.
func LoadOptions(target string) (Options, error) {
	opts := Options{Target: target}
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("parsing client environment: %w", err)
	}
	return opts, nil
}

// Client calls the chatmerge API.
type Client struct {
	target string
	http   *http.Client
}

// New creates a Client for opts.Target.
func New(opts Options) (*Client, error) {
	if opts.Target == "" {
		return nil, errors.New("API target is required")
	}
	if _, err := url.Parse(opts.Target); err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Client{
		target: strings.TrimSuffix(opts.Target, "/"),
		http:   &http.Client{Timeout: opts.Timeout},
	}, nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	return c.do(ctx, http.MethodGet, "/ping", nil, &pong)
}

// ListChats returns every chat, most recently updated first.
func (c *Client) ListChats(ctx context.Context) ([]api.ChatResponse, error) {
	var chats []api.ChatResponse
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat creates an empty chat.
func (c *Client) CreateChat(ctx context.Context, req api.CreateChatRequest) (*api.ChatResponse, error) {
	var chat api.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chats", req, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChat returns a chat with its turns.
func (c *Client) GetChat(ctx context.Context, id string) (*api.ChatResponse, error) {
	var chat api.ChatResponse
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(id), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// DeleteChat deletes a chat and everything attached to it.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(id), nil, nil)
}

// MergeHistory lists completed merges, newest first.
func (c *Client) MergeHistory(ctx context.Context) ([]*storage.MergeRecord, error) {
	var records []*storage.MergeRecord
	if err := c.do(ctx, http.MethodGet, "/api/merge/history", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Models returns the models offered by each provider.
func (c *Client) Models(ctx context.Context) (map[string][]string, error) {
	var models map[string][]string
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// Complete sends a user message to a chat and returns the streamed answer.
// The sequence must be ranged over to release the connection.
func (c *Client) Complete(ctx context.Context, chatID string, req completion.Request) (iter.Seq[llm.Chunk], error) {
	return c.stream(ctx, "/api/chats/"+url.PathEscape(chatID)+"/completions", req)
}

// Merge starts a merge and returns its streamed progress.
// The sequence must be ranged over to release the connection.
func (c *Client) Merge(ctx context.Context, req merge.Request) (iter.Seq[llm.Chunk], error) {
	return c.stream(ctx, "/api/merge", req)
}

// stream posts body to path and decodes the SSE response into chunks. A
// broken or malformed stream ends the sequence with an error chunk.
func (c *Client) stream(ctx context.Context, path string, body any) (iter.Seq[llm.Chunk], error) {
	resp, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	return func(yield func(llm.Chunk) bool) {
		defer resp.Body.Close()

		reader := sse.NewReader(resp.Body)
		for {
			ev, err := reader.Next()
			if err != nil {
				yield(llm.ErrorChunk(fmt.Sprintf("reading stream: %v", err)))
				return
			}
			if ev == nil {
				return
			}

			var chunk llm.Chunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				yield(llm.ErrorChunk(fmt.Sprintf("parsing stream chunk: %v", err)))
				return
			}
			if !yield(chunk) || chunk.IsTerminal() {
				return
			}
		}
	}, nil
}

// do sends a JSON request and decodes a JSON response into out. A nil out
// discards the body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// send performs the request and turns a non-2xx status into a StatusError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.target+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chatmerge API at %s: %w", c.target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)

		msg := strings.TrimSpace(string(data))
		var apiErr llm.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	return resp, nil
}
