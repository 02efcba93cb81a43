package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

// MessageBus connects the platform adapters to the processing pipeline.
// Inbound carries canonical messages; outbound carries relay posts back
// to the channel that owns the destination chat.
type MessageBus struct {
	inbound  chan Message
	outbound chan RelayPost
	done     chan struct{}
	closed   atomic.Bool
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan Message, 100),
		outbound: make(chan RelayPost, 100),
		done:     make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, msg Message) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.inbound <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Message, bool) {
	select {
	case msg, ok := <-mb.inbound:
		return msg, ok
	case <-mb.done:
		return Message{}, false
	case <-ctx.Done():
		return Message{}, false
	}
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, post RelayPost) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.outbound <- post:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (RelayPost, bool) {
	select {
	case post, ok := <-mb.outbound:
		return post, ok
	case <-mb.done:
		return RelayPost{}, false
	case <-ctx.Done():
		return RelayPost{}, false
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
