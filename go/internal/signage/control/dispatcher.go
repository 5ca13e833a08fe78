package control

import (
	"context"

	"github.com/mcdev12/signage/go/internal/signage/commands"
)

// Dispatcher delivers a command to the gateways
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd commands.Command) error
}

// Applier executes a command directly, as the gateway coordinator does
type Applier interface {
	Apply(ctx context.Context, cmd commands.Command) error
}

// LocalDispatcher applies commands in-process. It is used when the control
// surface and a single gateway share a binary.
type LocalDispatcher struct {
	applier Applier
}

// NewLocalDispatcher creates a dispatcher that calls applier directly
func NewLocalDispatcher(applier Applier) *LocalDispatcher {
	return &LocalDispatcher{applier: applier}
}

// Dispatch implements Dispatcher
func (d *LocalDispatcher) Dispatch(ctx context.Context, cmd commands.Command) error {
	return d.applier.Apply(ctx, cmd)
}

// Publisher publishes commands to a stream
type Publisher interface {
	Publish(ctx context.Context, cmd commands.Command) error
}

// StreamDispatcher publishes commands so every gateway instance applies
// them to its own sockets.
type StreamDispatcher struct {
	publisher Publisher
}

// NewStreamDispatcher creates a dispatcher backed by publisher
func NewStreamDispatcher(publisher Publisher) *StreamDispatcher {
	return &StreamDispatcher{publisher: publisher}
}

// Dispatch implements Dispatcher
func (d *StreamDispatcher) Dispatch(ctx context.Context, cmd commands.Command) error {
	return d.publisher.Publish(ctx, cmd)
}
