package channels

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/config"
	"github.com/offchainlab/harvestd/pkg/ocr"
)

// Manager owns every enabled platform adapter. Adapters run their receive
// loops independently and concurrently; the only state they share is the
// bus, the dedup store behind it, and the OCR engine instance.
type Manager struct {
	channels map[string]Channel
	logger   *zap.Logger
}

func NewManager(cfg *config.Config, b *bus.MessageBus, engine ocr.Engine, logger *zap.Logger) *Manager {
	m := &Manager{
		channels: make(map[string]Channel),
		logger:   logger.Named("channels"),
	}

	if cfg.Channels.Discord.Enabled {
		m.channels["discord"] = NewDiscordChannel(
			cfg.Channels.Discord, b, engine, cfg.OCR.Timeout(), logger)
	}
	if cfg.Channels.Telegram.Enabled {
		m.channels["telegram"] = NewTelegramChannel(
			cfg.Channels.Telegram, b, engine, cfg.OCR.Timeout(), logger)
	}
	if cfg.Channels.Feishu.Enabled {
		m.channels["feishu"] = NewFeishuChannel(
			cfg.Channels.Feishu, cfg.Gateway, b, engine, cfg.OCR.Timeout(), logger)
	}

	return m
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// Enabled lists the configured channel names in stable order.
func (m *Manager) Enabled() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every adapter. One adapter failing to start is logged
// and does not keep the others down.
func (m *Manager) StartAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			m.logger.Error("starting channel", zap.String("channel", name), zap.Error(err))
		}
	}
}

func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			m.logger.Warn("stopping channel", zap.String("channel", name), zap.Error(err))
		}
	}
}
