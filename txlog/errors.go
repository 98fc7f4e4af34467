package txlog

import "errors"

var (
	// ErrInternal signals a builder or optimizer bug: a log key appearing twice, a slot used
	// both as scalar and list, or a list index the simulation cannot place.
	ErrInternal = errors.New("transaction log internal consistency violation")

	// ErrReplay is returned by Mirror when a record cannot be applied to the replica.
	ErrReplay = errors.New("change cannot be applied to replica")
)
