// Package retrieval assembles the bounded prior-turn context sent with every
// completion.
//
// Ordinary conversations replay their full history until it grows past a
// threshold, then switch to a window of recent turns plus turns recalled by
// similarity. Fused conversations always retrieve from their namespace and
// replay only the introduction written by the merge. When retrieval fails an
// ordinary conversation degrades to its full history, and a fused one to its
// introduction plus the recent window.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/embeddings"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// Defaults for Config.
const (
	DefaultRecencyThreshold = 10
	DefaultRecentTurns      = 6
	DefaultTopK             = 8
)

const (
	blockHeader = "--- Retrieved context from merged conversations ---"
	blockFooter = "--- End of retrieved context ---"
)

// Mode names the strategy Build used.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeRecency Mode = "recency"
	ModeFused   Mode = "fused"
)

// Config configures an Assembler.
type Config struct {
	Store storage.Driver

	// Vectors and Embedder may be nil, which disables retrieval.
	Vectors  vector.Resolver
	Embedder embeddings.Embedder

	RecencyThreshold int
	RecentTurns      int
	TopK             int

	Logger *slog.Logger
}

// Assembler builds per-turn contexts.
type Assembler struct {
	store    storage.Driver
	vectors  vector.Resolver
	embedder embeddings.Embedder

	threshold int
	recent    int
	topK      int

	logger *slog.Logger
}

// NewAssembler creates an Assembler, applying defaults for unset limits.
func NewAssembler(cfg Config) *Assembler {
	a := &Assembler{
		store:     cfg.Store,
		vectors:   cfg.Vectors,
		embedder:  cfg.Embedder,
		threshold: cfg.RecencyThreshold,
		recent:    cfg.RecentTurns,
		topK:      cfg.TopK,
		logger:    cfg.Logger,
	}
	if a.threshold <= 0 {
		a.threshold = DefaultRecencyThreshold
	}
	if a.recent <= 0 {
		a.recent = DefaultRecentTurns
	}
	if a.topK <= 0 {
		a.topK = DefaultTopK
	}
	if a.logger == nil {
		a.logger = logger.Nop()
	}
	return a
}

// Request describes the turn being answered.
type Request struct {
	Conversation *storage.Conversation
	Query        string

	// ExcludeTurnID is left out of the history, normally the user turn that
	// was just persisted for Query.
	ExcludeTurnID string
}

// Retrieved is one similarity hit.
type Retrieved struct {
	ID      string  `json:"id"`
	TurnID  string  `json:"message_id,omitempty"`
	Role    string  `json:"role,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Type    string  `json:"type,omitempty"`
}

// Context is the assembled prior context of a turn.
type Context struct {
	// Messages is the verbatim history, oldest first.
	Messages []llm.Message

	// SystemAddendum is appended to the system prompt for this turn only.
	SystemAddendum string

	Mode      Mode
	Retrieved []Retrieved
}

// Build assembles the context for req. Retrieval failures are logged and
// downgrade to ModeFull, except for fused conversations, which are never
// replayed in full. Only storage failures are returned.
func (a *Assembler) Build(ctx context.Context, req Request) (*Context, error) {
	if req.Conversation == nil {
		return nil, errors.New("retrieval: nil conversation")
	}

	turns, err := a.store.ListTurns(ctx, req.Conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	turns = slices.DeleteFunc(turns, func(t *storage.Turn) bool { return t.ID == req.ExcludeTurnID })

	switch {
	case req.Conversation.Fused:
		out, err := a.buildFused(ctx, req, turns)
		if err == nil {
			return out, nil
		}
		a.fallback(req.Conversation.ID, ModeFused, err)
		return &Context{Messages: ToMessages(a.fusedWindow(turns)), Mode: ModeFused}, nil
	case len(turns) > a.threshold:
		out, err := a.buildRecency(ctx, req, turns)
		if err == nil {
			return out, nil
		}
		a.fallback(req.Conversation.ID, ModeRecency, err)
	}

	return &Context{Messages: ToMessages(turns), Mode: ModeFull}, nil
}

func (a *Assembler) fallback(conversationID string, mode Mode, err error) {
	if errors.Is(err, vector.ErrNotConfigured) {
		a.logger.Debug("retrieval unavailable, degrading context", "conversation", conversationID, "mode", mode)
		return
	}
	a.logger.Warn("retrieval failed, degrading context", "conversation", conversationID, "mode", mode, "error", err)
}

// fusedWindow is the context of a fused conversation without retrieval: the
// merge introduction followed by at most a.recent later turns.
func (a *Assembler) fusedWindow(turns []*storage.Turn) []*storage.Turn {
	var intro, rest []*storage.Turn
	for _, t := range turns {
		if t.Origin == storage.OriginMerge {
			intro = append(intro, t)
		} else {
			rest = append(rest, t)
		}
	}
	return append(intro, rest[max(0, len(rest)-a.recent):]...)
}

func (a *Assembler) buildFused(ctx context.Context, req Request, turns []*storage.Turn) (*Context, error) {
	hits, err := a.Search(ctx, req.Conversation.ID, req.Query, a.topK)
	if err != nil {
		return nil, err
	}

	intro := make([]*storage.Turn, 0, 1)
	for _, t := range turns {
		if t.Origin == storage.OriginMerge {
			intro = append(intro, t)
		}
	}

	return &Context{
		Messages:       ToMessages(intro),
		SystemAddendum: FormatBlock(hits),
		Mode:           ModeFused,
		Retrieved:      hits,
	}, nil
}

func (a *Assembler) buildRecency(ctx context.Context, req Request, turns []*storage.Turn) (*Context, error) {
	hits, err := a.Search(ctx, req.Conversation.ID, req.Query, a.topK)
	if err != nil {
		return nil, err
	}

	recent := turns[max(0, len(turns)-a.recent):]
	seen := make(map[string]bool, len(recent)+1)
	seen[req.ExcludeTurnID] = true
	for _, t := range recent {
		seen[t.ID] = true
	}

	wanted := make([]string, 0, len(hits))
	for _, h := range hits {
		if id := h.TurnID; id != "" && !seen[id] {
			seen[id] = true
			wanted = append(wanted, id)
		}
	}

	selected := slices.Clone(recent)
	if len(wanted) > 0 {
		found, err := a.store.GetTurns(ctx, wanted)
		if err != nil {
			return nil, fmt.Errorf("resolving retrieved turns: %w", err)
		}
		for _, t := range found {
			if t.ConversationID == req.Conversation.ID {
				selected = append(selected, t)
			}
		}
	}

	slices.SortStableFunc(selected, func(x, y *storage.Turn) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	selected = slices.CompactFunc(selected, func(x, y *storage.Turn) bool { return x.ID == y.ID })

	return &Context{
		Messages:  ToMessages(selected),
		Mode:      ModeRecency,
		Retrieved: hits,
	}, nil
}

// Search embeds query and returns the topK closest records of namespace. It
// returns vector.ErrNotConfigured when no index or embedder is available.
func (a *Assembler) Search(ctx context.Context, namespace, query string, topK int) ([]Retrieved, error) {
	if a.vectors == nil || a.embedder == nil {
		return nil, vector.ErrNotConfigured
	}
	if topK <= 0 {
		topK = a.topK
	}

	driver, err := a.vectors.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrEmbedding, err)
	}

	matches, err := driver.Query(ctx, namespace, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", namespace, err)
	}

	hits := make([]Retrieved, 0, len(matches))
	for _, m := range matches {
		turnID := m.Metadata[vector.MetaTurnID]
		if turnID == "" && m.Metadata[vector.MetaType] == "" {
			turnID = m.ID
		}
		hits = append(hits, Retrieved{
			ID:      m.ID,
			TurnID:  turnID,
			Role:    m.Metadata[vector.MetaRole],
			Content: m.Metadata[vector.MetaContent],
			Score:   m.Score,
			Type:    m.Metadata[vector.MetaType],
		})
	}

	a.logger.Debug("retrieved context", "namespace", namespace, "hits", len(hits))
	return hits, nil
}

// FormatBlock renders hits as the retrieved-context system addendum, in
// rank order. No hits render as the empty string.
func FormatBlock(hits []Retrieved) string {
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(blockHeader)
	b.WriteString("\n")
	for i, h := range hits {
		role := h.Role
		if role == "" {
			role = h.Type
		}
		if role == "" {
			role = "context"
		}
		fmt.Fprintf(&b, "[%d] (%s, relevance %.2f) %s\n", i+1, role, h.Score, h.Content)
	}
	b.WriteString(blockFooter)
	return b.String()
}

// ToMessages converts stored turns to provider messages. Context markers
// become bracketed user messages and assistant reasoning traces are
// prefixed to the content.
func ToMessages(turns []*storage.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		switch {
		case t.IsContextMarker():
			out = append(out, llm.NewTextMessage(llm.RoleUser, "[System context: "+t.Content+"]"))
		case t.Role == storage.RoleAssistant && t.Reasoning != "":
			out = append(out, llm.NewTextMessage(llm.RoleAssistant,
				"<reasoning_trace>\n"+t.Reasoning+"\n</reasoning_trace>\n\n"+t.Content))
		default:
			out = append(out, llm.NewTextMessage(t.Role, t.Content))
		}
	}
	return out
}
