package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/chatmerge/pkg/eventstream"
)

// RecordingPublisher is an eventstream.Publisher that keeps every event.
type RecordingPublisher struct {
	mu     sync.Mutex
	turns  []*eventstream.TurnPersistedEvent
	merges []*eventstream.MergeCompletedEvent

	// Err is returned by every publish call after recording the event.
	Err error
}

var _ eventstream.Publisher = (*RecordingPublisher)(nil)

func (r *RecordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnPersistedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, event)
	return r.Err
}

func (r *RecordingPublisher) PublishMerge(_ context.Context, event *eventstream.MergeCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merges = append(r.merges, event)
	return r.Err
}

// Turns returns the published turn events.
func (r *RecordingPublisher) Turns() []*eventstream.TurnPersistedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.TurnPersistedEvent(nil), r.turns...)
}

// Merges returns the published merge events.
func (r *RecordingPublisher) Merges() []*eventstream.MergeCompletedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.MergeCompletedEvent(nil), r.merges...)
}

func (r *RecordingPublisher) Close() error { return nil }
