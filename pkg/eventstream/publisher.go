package eventstream

import "context"

// Publisher publishes domain events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnPersistedEvent) error
	PublishMerge(ctx context.Context, event *MergeCompletedEvent) error
	Close() error
}
