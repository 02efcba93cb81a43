// Package relay re-posts relevant group messages to a single configured
// destination chat. Relay is best-effort: every failure here is logged
// and skipped, never surfaced to the ingestion pipeline.
package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/classifier"
	"github.com/offchainlab/harvestd/pkg/config"
)

// Sender posts text to a destination chat. The Feishu channel implements
// this over the open API.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// NameResolver turns a platform user ID into a display name.
type NameResolver interface {
	ResolveName(ctx context.Context, userID string) (string, error)
}

// BusSender queues posts on the message bus instead of calling a platform
// API inline; a dispatcher on the other side performs the actual send.
type BusSender struct {
	bus *bus.MessageBus
}

func NewBusSender(b *bus.MessageBus) *BusSender {
	return &BusSender{bus: b}
}

func (s *BusSender) SendText(ctx context.Context, chatID, text string) error {
	return s.bus.PublishOutbound(ctx, bus.RelayPost{ChatID: chatID, Content: text})
}

type Relay struct {
	cfg        config.RelayConfig
	classifier *classifier.Classifier
	sender     Sender
	names      NameResolver
	logger     *zap.Logger
	now        func() time.Time
}

func New(
	cfg config.RelayConfig,
	cls *classifier.Classifier,
	sender Sender,
	names NameResolver,
	logger *zap.Logger,
) *Relay {
	return &Relay{
		cfg:        cfg,
		classifier: cls,
		sender:     sender,
		names:      names,
		logger:     logger.Named("relay"),
		now:        time.Now,
	}
}

// MaybeRelay applies the gates in order: freshness, content, relevance.
// It reports whether the message was actually re-posted. An error means a
// collaborator failed, not that a gate rejected the message.
func (r *Relay) MaybeRelay(ctx context.Context, msg bus.Message) (bool, error) {
	if !msg.IsGroup {
		return false, nil
	}

	// Stale messages are a replayed backlog, not live traffic.
	if age := r.now().Sub(msg.ReceivedAt); age > r.cfg.FreshnessWindow() {
		r.logger.Debug("stale message not relayed",
			zap.String("message_id", msg.MessageID),
			zap.Duration("age", age))
		return false, nil
	}

	// Only text and image messages carry relayable content; the adapter's
	// single OCR pass already folded image text into msg.Text.
	if msg.Text == "" {
		return false, nil
	}

	verdict, err := r.classifier.Classify(ctx, msg.Text)
	if err != nil {
		return false, fmt.Errorf("relay relevance check: %w", err)
	}
	if !verdict.Relevant {
		return false, nil
	}

	author := msg.Author
	if r.names != nil && author != "" {
		name, err := r.names.ResolveName(ctx, msg.Author)
		if err != nil {
			return false, fmt.Errorf("resolving author name: %w", err)
		}
		author = name
	}

	post := fmt.Sprintf("%s: %s", author, msg.Text)
	if err := r.sender.SendText(ctx, r.cfg.DestinationChatID, post); err != nil {
		return false, fmt.Errorf("posting relay: %w", err)
	}

	r.logger.Info("relayed message",
		zap.String("message_id", msg.MessageID),
		zap.String("destination", r.cfg.DestinationChatID))
	return true, nil
}
