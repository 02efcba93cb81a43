package channels

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
)

// Channel is one platform adapter: it owns its receive loop (gateway
// connection, long poll, or webhook server) and publishes canonical
// messages onto the bus.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

type BaseChannel struct {
	bus     *bus.MessageBus
	running atomic.Bool
	name    string
	logger  *zap.Logger
}

func NewBaseChannel(name string, b *bus.MessageBus, logger *zap.Logger) *BaseChannel {
	return &BaseChannel{
		bus:    b,
		name:   name,
		logger: logger.Named(name),
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

func (c *BaseChannel) Logger() *zap.Logger {
	return c.logger
}

// Publish hands a normalized message to the pipeline. Events that could
// not be normalized into an identifiable message with content are dropped
// here; a skipped event is never fatal to the receive loop.
func (c *BaseChannel) Publish(msg bus.Message) {
	if msg.MessageID == "" || (msg.Text == "" && msg.ImageURL == "") {
		c.logger.Warn("dropping malformed event",
			zap.String("message_id", msg.MessageID),
			zap.String("platform", msg.Platform))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.bus.PublishInbound(ctx, msg); err != nil {
		c.logger.Error("publishing inbound message",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
	}
}
