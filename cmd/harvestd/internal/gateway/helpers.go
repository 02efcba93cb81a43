package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/cmd/harvestd/internal"
	"github.com/offchainlab/harvestd/pkg/archive"
	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/channels"
	"github.com/offchainlab/harvestd/pkg/classifier"
	"github.com/offchainlab/harvestd/pkg/config"
	"github.com/offchainlab/harvestd/pkg/dedup"
	"github.com/offchainlab/harvestd/pkg/llm"
	"github.com/offchainlab/harvestd/pkg/ocr"
	"github.com/offchainlab/harvestd/pkg/pipeline"
	"github.com/offchainlab/harvestd/pkg/relay"
)

func gatewayCmd(debug bool) error {
	logger, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.APIBase, cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("error creating provider: %w", err)
	}
	cls := classifier.New(provider, cfg.Keyword)

	store, err := archive.NewStore(cfg.Dataset.Path)
	if err != nil {
		return fmt.Errorf("error opening dataset: %w", err)
	}

	stores, err := newDedupStores(cfg)
	if err != nil {
		return fmt.Errorf("error creating dedup backend: %w", err)
	}

	msgBus := bus.NewMessageBus()
	engine := ocr.NewEasyOCRClient(cfg.OCR.Endpoint, cfg.OCR.Timeout(), logger)
	manager := channels.NewManager(cfg, msgBus, engine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := pipeline.New(pipeline.Deps{
		Bus:        msgBus,
		Stores:     stores,
		Classifier: cls,
		Archive:    store,
		Relay:      newRelay(ctx, cfg, cls, manager, msgBus, logger),
		LLMTimeout: cfg.LLM.Timeout(),
		Logger:     logger,
	})

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	manager.StartAll(ctx)

	enabled := manager.Enabled()
	if len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("⚠ Warning: no channels enabled")
	}
	fmt.Printf("✓ Gateway started, watching keyword %q\n", cfg.Keyword)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	manager.StopAll(stopCtx)
	cancel()
	msgBus.Close()
	select {
	case <-done:
	case <-stopCtx.Done():
		logger.Warn("pipeline did not drain before deadline")
	}
	fmt.Println("✓ Gateway stopped")

	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newDedupStores builds one store per platform so each keeps its own
// repeat-delivery window.
func newDedupStores(cfg *config.Config) (map[string]dedup.Store, error) {
	platforms := []string{bus.PlatformTwitter, bus.PlatformFeishu, bus.PlatformTelegram}
	stores := make(map[string]dedup.Store, len(platforms))

	if cfg.Dedup.Backend == "redis" {
		client, err := dedup.NewRedisClient(cfg.Dedup.RedisAddr, cfg.Dedup.RedisPassword, cfg.Dedup.RedisDB)
		if err != nil {
			return nil, err
		}
		for _, platform := range platforms {
			stores[platform] = dedup.NewRedisStore(client, cfg.Dedup.TTLFor(platform))
		}
		return stores, nil
	}

	for _, platform := range platforms {
		stores[platform] = dedup.NewMemoryStore(cfg.Dedup.TTLFor(platform))
	}
	return stores, nil
}

// newRelay wires the group re-post hook. Posts go through the bus
// outbound queue; a dispatcher drains it into the Feishu channel, the
// only platform with an outbound API here. Returns nil when relay is off
// or Feishu is not running.
func newRelay(
	ctx context.Context,
	cfg *config.Config,
	cls *classifier.Classifier,
	manager *channels.Manager,
	msgBus *bus.MessageBus,
	logger *zap.Logger,
) pipeline.Relayer {
	if !cfg.Relay.Enabled {
		return nil
	}
	ch, ok := manager.GetChannel("feishu")
	if !ok {
		logger.Warn("relay enabled but feishu channel is not, relay disabled")
		return nil
	}
	fc, ok := ch.(*channels.FeishuChannel)
	if !ok {
		return nil
	}

	// The destination is either a group chat or a single user, matching
	// the platform's chat_id and open_id receive-id types.
	send := fc.SendText
	if cfg.Relay.DestinationType() == "open_id" {
		send = fc.SendDirect
	}

	go dispatchOutbound(ctx, msgBus, send, logger)
	return relay.New(cfg.Relay, cls, relay.NewBusSender(msgBus), fc, logger)
}

func dispatchOutbound(
	ctx context.Context,
	msgBus *bus.MessageBus,
	send func(ctx context.Context, receiverID, text string) error,
	logger *zap.Logger,
) {
	log := logger.Named("outbound")
	for {
		post, ok := msgBus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := send(sendCtx, post.ChatID, post.Content); err != nil {
			log.Warn("posting relay message", zap.String("receiver", post.ChatID), zap.Error(err))
		}
		cancel()
	}
}
