package bridge

import (
	"context"
)

const DefaultSize = 100

// Bridge is a pair of one-way channels between consumers and the engine.
type Bridge struct {
	commands chan Command
	events   chan Event
}

func New(size int) *Bridge {
	if size <= 0 {
		size = DefaultSize
	}

	return &Bridge{
		commands: make(chan Command, size),
		events:   make(chan Event, size),
	}
}

// Send delivers the command to the engine. It blocks while the command queue is full.
func (b *Bridge) Send(ctx context.Context, command Command) error {
	select {
	case b.commands <- command:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) Events() <-chan Event {
	return b.events
}

func (b *Bridge) Commands() <-chan Command {
	return b.commands
}

// Emit delivers the event to consumers. It blocks while the event queue is full.
func (b *Bridge) Emit(ctx context.Context, event Event) error {
	select {
	case b.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
