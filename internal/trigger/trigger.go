package trigger

import (
	"context"
	"errors"
	"fmt"
	"makerworld-stats/internal/assert"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/internal/parser"
	"makerworld-stats/internal/snapshot"
)

// Updater is the part of the coordinator a trigger needs.
type Updater interface {
	RequestUpdate(ctx context.Context, reason coordinator.Reason) (snapshot.Snapshot, error)
}

// Feedback is shown to whoever pressed the button, it is not stored anywhere.
type Feedback struct {
	OK       bool
	Message  string
	Snapshot snapshot.Snapshot
}

// Button requests an out of cycle update, it holds no state of its own.
type Button struct {
	updater Updater
}

func NewButton(updater Updater) Button {
	assert.NotNil(updater, "updater")
	return Button{updater: updater}
}

func (b Button) Press(ctx context.Context) Feedback {
	snap, err := b.updater.RequestUpdate(ctx, coordinator.ReasonManual)
	if err == nil {
		return Feedback{
			OK:       true,
			Message:  fmt.Sprintf("updated (#%d)", snap.Sequence),
			Snapshot: snap,
		}
	}

	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) && parseErr.Partial {
		return Feedback{
			OK:       true,
			Message:  fmt.Sprintf("updated with warnings (#%d): %s", snap.Sequence, err.Error()),
			Snapshot: snap,
		}
	}

	return Feedback{
		OK:       false,
		Message:  fmt.Sprintf("update failed (%s): %s", coordinator.Classify(err), err.Error()),
		Snapshot: snap,
	}
}
