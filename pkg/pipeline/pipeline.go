// Package pipeline drains the inbound side of the message bus and runs
// each message through dedup, relevance classification and archival.
// Channels stay dumb producers; every cross-platform decision lives here.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/archive"
	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/classifier"
	"github.com/offchainlab/harvestd/pkg/dedup"
)

// Relayer is the optional group re-post hook. Relay failures never block
// or fail archival.
type Relayer interface {
	MaybeRelay(ctx context.Context, msg bus.Message) (bool, error)
}

// Deps carries everything a Pipeline needs. Stores is keyed by platform
// name; platforms without an entry skip dedup entirely.
type Deps struct {
	Bus        *bus.MessageBus
	Stores     map[string]dedup.Store
	Classifier *classifier.Classifier
	Archive    *archive.Store
	Relay      Relayer
	LLMTimeout time.Duration
	Logger     *zap.Logger
}

type Pipeline struct {
	bus        *bus.MessageBus
	stores     map[string]dedup.Store
	classifier *classifier.Classifier
	archive    *archive.Store
	relay      Relayer
	llmTimeout time.Duration
	logger     *zap.Logger

	wg sync.WaitGroup
}

func New(deps Deps) *Pipeline {
	return &Pipeline{
		bus:        deps.Bus,
		stores:     deps.Stores,
		classifier: deps.Classifier,
		archive:    deps.Archive,
		relay:      deps.Relay,
		llmTimeout: deps.LLMTimeout,
		logger:     deps.Logger.Named("pipeline"),
	}
}

// Run consumes inbound messages until the context is cancelled or the
// bus is closed, then waits for in-flight messages to finish.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		msg, ok := p.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		p.wg.Add(1)
		go func(m bus.Message) {
			defer p.wg.Done()
			p.process(ctx, m)
		}(msg)
	}
	p.wg.Wait()
	p.logger.Info("pipeline drained")
}

func (p *Pipeline) process(ctx context.Context, msg bus.Message) {
	log := p.logger.With(
		zap.String("platform", msg.Platform),
		zap.String("message_id", msg.MessageID))

	if p.seenBefore(ctx, msg, log) {
		return
	}

	// Relay runs concurrently with archival so a slow destination chat
	// cannot delay the dataset write.
	if p.relay != nil && msg.IsGroup {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if _, err := p.relay.MaybeRelay(ctx, msg); err != nil {
				log.Warn("relay failed", zap.Error(err))
			}
		}()
	}

	if msg.Text == "" {
		log.Debug("no text content, nothing to classify")
		return
	}

	cctx := ctx
	if p.llmTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, p.llmTimeout)
		defer cancel()
	}
	verdict, err := p.classifier.Classify(cctx, msg.Text)
	if err != nil {
		// Fail closed: an unclassifiable message is never archived.
		log.Warn("classification failed, message dropped", zap.Error(err))
		return
	}
	if !verdict.Relevant {
		log.Debug("message not relevant", zap.String("answer", verdict.RawAnswer))
		return
	}

	rec := archive.Record{
		URL:      archive.StringOrNil(msg.ImageURL),
		Data:     msg.Text,
		Platform: msg.Platform,
		Author:   archive.StringOrNil(msg.Author),
	}
	if err := p.archive.Append(rec); err != nil {
		log.Error("archiving message failed", zap.Error(err))
		return
	}
	log.Info("message archived")
}

// seenBefore marks the message in the platform's dedup store. The store
// does check-and-mark in one atomic step, so concurrent deliveries of the
// same key resolve to exactly one new observation. Store failures degrade
// to treating the message as new; a flaky cache must not silence
// ingestion.
func (p *Pipeline) seenBefore(ctx context.Context, msg bus.Message, log *zap.Logger) bool {
	store, ok := p.stores[msg.Platform]
	if !ok {
		return false
	}
	seen, err := store.MarkSeen(ctx, msg.DedupKey())
	if err != nil {
		log.Warn("dedup lookup failed", zap.Error(err))
		return false
	}
	if seen {
		log.Debug("duplicate delivery dropped")
	}
	return seen
}
