package eventstream

import "errors"

var (
	// ErrNilTurnEvent indicates a nil turn event payload was provided to a publisher.
	ErrNilTurnEvent = errors.New("nil turn event")

	// ErrNilMergeEvent indicates a nil merge event payload was provided to a publisher.
	ErrNilMergeEvent = errors.New("nil merge event")
)
