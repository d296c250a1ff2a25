// Package merge combines several conversations into a new fused one.
//
// A merge creates an empty conversation, fuses the vector namespaces of its
// sources into the new namespace and writes a short introduction turn.
// Every later turn of the merged conversation is answered from retrieval
// alone. Progress streams to the caller as chunks.
package merge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/eventstream"
	"github.com/papercomputeco/chatmerge/pkg/fusion"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// MinSources is the smallest number of conversations a merge accepts.
const MinSources = 2

// Stage is a step of the merge pipeline.
type Stage string

const (
	StageLoading     Stage = "loading"
	StageCreated     Stage = "created"
	StageFusing      Stage = "fusing"
	StageIntroducing Stage = "introducing"
	StageRecorded    Stage = "recorded"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Strategy names how the vectors of a merge were combined.
type Strategy string

const (
	StrategyFusion Strategy = "fusion"
	StrategyUnion  Strategy = "union"
	StrategyNone   Strategy = "none"
)

// VectorStoreRequired is the error reported when no vector store is configured.
const VectorStoreRequired = "A vector store is required for merged chats. Configure vector_store in config.toml."

// Config configures an Orchestrator.
type Config struct {
	Store     storage.Driver
	Vectors   vector.Resolver
	Providers provider.Connector

	// Events is optional.
	Events eventstream.Publisher

	// FusionThreshold defaults to fusion.DefaultThreshold.
	FusionThreshold float64

	// DefaultProvider and DefaultModel apply when a request names neither.
	DefaultProvider string
	DefaultModel    string

	Logger *slog.Logger
}

// Orchestrator runs merges.
type Orchestrator struct {
	store     storage.Driver
	vectors   vector.Resolver
	providers provider.Connector
	events    eventstream.Publisher
	threshold float64

	defaultProvider string
	defaultModel    string

	logger *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:           cfg.Store,
		vectors:         cfg.Vectors,
		providers:       cfg.Providers,
		events:          cfg.Events,
		threshold:       cfg.FusionThreshold,
		defaultProvider: cfg.DefaultProvider,
		defaultModel:    cfg.DefaultModel,
		logger:          cfg.Logger,
	}
	if o.threshold <= 0 {
		o.threshold = fusion.DefaultThreshold
	}
	if o.defaultProvider == "" {
		o.defaultProvider = provider.OpenAI
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	return o
}

// Request names the conversations to merge and the model of the result.
type Request struct {
	SourceIDs []string `json:"chat_ids"`
	Provider  string   `json:"merge_provider,omitempty"`
	Model     string   `json:"merge_model,omitempty"`
}

// source is a loaded source conversation.
type source struct {
	conversation *storage.Conversation
	turns        []*storage.Turn
}

// run carries the state of one merge.
type run struct {
	o     *Orchestrator
	req   Request
	yield func(llm.Chunk) bool
	stage Stage

	sources  []source
	titles   []string
	merged   *storage.Conversation
	result   fusion.Result
	strategy Strategy
	warning  string
}

// Merge runs the pipeline for req. The returned sequence ends with a
// merge_complete chunk carrying the new conversation ID, or with an error
// chunk. Stopping the iteration stops the pipeline at the next step.
func (o *Orchestrator) Merge(ctx context.Context, req Request) iter.Seq[llm.Chunk] {
	return func(yield func(llm.Chunk) bool) {
		r := &run{o: o, req: req, yield: yield, strategy: StrategyNone}
		if r.req.Provider == "" {
			r.req.Provider = o.defaultProvider
		}
		if r.req.Model == "" {
			r.req.Model = o.defaultModel
		}
		r.execute(ctx)
	}
}

func (r *run) enter(s Stage) {
	r.stage = s
	r.o.logger.Debug("merge stage", "stage", s, "sources", r.req.SourceIDs)
}

func (r *run) progress(format string, args ...any) bool {
	return r.yield(llm.ContentChunk(fmt.Sprintf(format, args...)))
}

// fail ends the merge with a terminal error chunk.
func (r *run) fail(msg string) {
	r.o.logger.Error("merge failed", "stage", r.stage, "sources", r.req.SourceIDs, "error", msg)
	r.stage = StageFailed
	r.yield(llm.ErrorChunk(msg))
}

func (r *run) internal(err error) {
	r.fail(fmt.Sprintf("Merge failed: %v", err))
}

func (r *run) execute(ctx context.Context) {
	r.enter(StageLoading)
	if len(r.req.SourceIDs) < MinSources {
		r.fail(fmt.Sprintf("At least %d chats are required to merge", MinSources))
		return
	}
	if r.req.Model == "" {
		if models := provider.AllModels()[r.req.Provider]; len(models) > 0 {
			r.req.Model = models[0]
		}
	}
	if !slices.Contains(provider.SupportedProviders(), r.req.Provider) {
		r.fail(fmt.Sprintf("Unsupported provider: %s", r.req.Provider))
		return
	}

	if !r.progress("Loading conversations...\n") {
		return
	}
	if !r.load(ctx) {
		return
	}

	r.enter(StageCreated)
	if !r.create(ctx) {
		return
	}

	r.enter(StageFusing)
	if !r.fuse(ctx) {
		return
	}

	r.enter(StageIntroducing)
	if !r.introduce(ctx) {
		return
	}

	r.enter(StageRecorded)
	if !r.record(ctx) {
		return
	}

	r.enter(StageDone)
	if !r.progress("\nMerge complete!\n") {
		return
	}
	r.yield(llm.MergeCompleteChunk(r.merged.ID))
}

func (r *run) load(ctx context.Context) bool {
	total := 0
	for i, id := range r.req.SourceIDs {
		c, err := r.o.store.GetConversation(ctx, id)
		if storage.IsNotFound(err) {
			r.fail(fmt.Sprintf("Chat %s not found", id))
			return false
		}
		if err != nil {
			r.internal(err)
			return false
		}

		turns, err := r.o.store.ListTurns(ctx, id)
		if err != nil {
			r.internal(err)
			return false
		}

		title := c.Title
		if title == "" {
			title = fmt.Sprintf("Chat %d", i+1)
		}

		r.sources = append(r.sources, source{conversation: c, turns: turns})
		r.titles = append(r.titles, title)
		total += len(turns)
	}

	return r.progress("Found %d conversations with %d total messages.\n", len(r.sources), total)
}

func (r *run) create(ctx context.Context) bool {
	r.merged = &storage.Conversation{
		Title:        Title(r.titles),
		Provider:     r.req.Provider,
		Model:        r.req.Model,
		SystemPrompt: SystemPrompt(r.titles),
		Fused:        true,
	}
	if err := r.o.store.CreateConversation(ctx, r.merged); err != nil {
		r.internal(err)
		return false
	}

	r.o.logger.Info("merged conversation created", "id", r.merged.ID, "sources", r.req.SourceIDs)
	return r.progress("Created merged chat (empty — context via RAG).\n")
}

// rollback removes the merged conversation after a configuration error.
func (r *run) rollback(ctx context.Context) {
	if err := r.o.store.DeleteConversation(context.WithoutCancel(ctx), r.merged.ID); err != nil {
		r.o.logger.Error("failed to roll back merged conversation", "id", r.merged.ID, "error", err)
	}
}

func (r *run) fuse(ctx context.Context) bool {
	var driver vector.Driver
	var err error
	if r.o.vectors == nil {
		err = vector.ErrNotConfigured
	} else {
		driver, err = r.o.vectors.Resolve(ctx)
	}
	if err != nil {
		r.rollback(ctx)
		if errors.Is(err, vector.ErrNotConfigured) {
			r.fail(VectorStoreRequired)
		} else {
			r.fail(fmt.Sprintf("Vector store unavailable: %v", err))
		}
		return false
	}

	if !r.progress("Fusing vector stores (smart merge)...\n") {
		return false
	}

	engine := fusion.NewEngine(fusion.Config{Driver: driver, Logger: r.o.logger})
	result, err := engine.Fuse(ctx, r.req.SourceIDs, r.merged.ID, r.o.threshold)
	if err == nil {
		r.result = result
		r.strategy = StrategyFusion
		return r.progress("Vector fusion complete: %d pairs fused, %d unique kept → %d total vectors.\n",
			result.Fused, result.Kept, result.Total)
	}

	r.o.logger.Error("smart fusion failed, falling back to union merge", "target", r.merged.ID, "error", err)
	r.warning = fmt.Sprintf("Smart fusion failed — using simple union merge. Reason: %v", err)
	if !r.yield(llm.WarningChunk(r.warning)) {
		return false
	}

	copied, err := engine.Union(ctx, r.req.SourceIDs, r.merged.ID)
	if err != nil {
		r.o.logger.Error("fallback union merge failed", "target", r.merged.ID, "error", err)
		return r.progress("Vector merge failed: %v\n", err)
	}

	r.result = fusion.Result{Kept: copied, Total: copied}
	r.strategy = StrategyUnion
	return r.progress("Fallback union merge complete.\n")
}

func (r *run) introduce(ctx context.Context) bool {
	if !r.progress("Generating intro message...\n") {
		return false
	}

	intro := r.generateIntro(ctx)
	if intro == "" {
		intro = TemplateIntro(r.titles)
	}
	if r.warning != "" {
		intro += "\n\n⚠ " + r.warning
	}

	turn := &storage.Turn{
		ConversationID: r.merged.ID,
		Role:           storage.RoleAssistant,
		Content:        intro,
		Origin:         storage.OriginMerge,
	}
	if err := r.o.store.AppendTurn(ctx, turn); err != nil {
		r.internal(err)
		return false
	}

	return r.progress("\n%s\n", intro)
}

// generateIntro asks the merge provider for an introduction. It returns the
// empty string on any failure.
func (r *run) generateIntro(ctx context.Context) string {
	if r.o.providers == nil {
		return ""
	}

	p, err := r.o.providers.Connect(r.req.Provider)
	if err != nil {
		r.o.logger.Warn("intro provider unavailable, using template", "provider", r.req.Provider, "error", err)
		return ""
	}

	synopses := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		synopses = append(synopses, Synopsis(s.turns))
	}

	req := provider.Request{
		Model:     r.req.Model,
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, IntroPrompt(r.titles, synopses))},
		MaxTokens: introMaxTokens,
	}

	var b strings.Builder
	for chunk := range p.Stream(ctx, req) {
		switch chunk.Type {
		case llm.ChunkContent:
			b.WriteString(chunk.Data)
		case llm.ChunkError:
			r.o.logger.Warn("failed to generate intro message", "provider", r.req.Provider, "error", chunk.Data)
			return ""
		}
		if chunk.IsTerminal() {
			break
		}
	}

	return strings.TrimSpace(b.String())
}

func (r *run) record(ctx context.Context) bool {
	rec := &storage.MergeRecord{
		SourceChatIDs: slices.Clone(r.req.SourceIDs),
		ResultChatID:  r.merged.ID,
		MergeProvider: r.req.Provider,
		MergeModel:    r.req.Model,
	}
	if err := r.o.store.CreateMergeRecord(ctx, rec); err != nil {
		r.internal(err)
		return false
	}

	r.o.logger.Info("merge complete",
		"merge_id", rec.ID,
		"sources", rec.SourceChatIDs,
		"result", rec.ResultChatID,
		"strategy", r.strategy,
	)

	if r.o.events != nil {
		event := eventstream.NewMergeCompletedEvent()
		event.MergeID = rec.ID
		event.SourceChatIDs = rec.SourceChatIDs
		event.ResultChatID = rec.ResultChatID
		event.Provider = rec.MergeProvider
		event.Model = rec.MergeModel
		event.Strategy = string(r.strategy)
		event.Fused = r.result.Fused
		event.Kept = r.result.Kept
		event.Total = r.result.Total

		if err := r.o.events.PublishMerge(context.WithoutCancel(ctx), event); err != nil {
			r.o.logger.Warn("failed to publish merge event", "merge_id", rec.ID, "error", err)
		}
	}

	return true
}
