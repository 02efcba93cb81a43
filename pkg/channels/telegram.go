package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/config"
	"github.com/offchainlab/harvestd/pkg/ocr"
)

type TelegramChannel struct {
	*BaseChannel
	cfg        config.TelegramConfig
	engine     ocr.Engine
	ocrTimeout time.Duration
	bot        *telego.Bot
	httpClient *http.Client
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewTelegramChannel(
	cfg config.TelegramConfig,
	b *bus.MessageBus,
	engine ocr.Engine,
	ocrTimeout time.Duration,
	logger *zap.Logger,
) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", b, logger),
		cfg:         cfg,
		engine:      engine,
		ocrTimeout:  ocrTimeout,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		done:        make(chan struct{}),
	}
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	bot, err := telego.NewBot(c.cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("creating telegram bot: %w", err)
	}
	c.bot = bot

	// Polling runs on a channel-owned context so Stop can end it without
	// waiting for the caller's context to be cancelled.
	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updates, err := bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("starting telegram long polling: %w", err)
	}

	c.SetRunning(true)
	c.Logger().Info("telegram long polling started")

	go func() {
		defer close(c.done)
		for update := range updates {
			c.handleUpdate(update)
		}
		c.SetRunning(false)
	}()

	return nil
}

// Stop cancels the polling context, then waits for the long-poll loop
// to drain in-flight updates.
func (c *TelegramChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.bot == nil {
		return nil
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// handleUpdate normalizes one long-poll update. A photo attachment and
// plain text are exclusive: the photo path (download, OCR, caption) wins
// when a photo is present, otherwise the text body is used as-is.
func (c *TelegramChannel) handleUpdate(update telego.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	var text string
	switch {
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first; take the largest rendition.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		text = c.photoText(fileID) + msg.Caption
	case msg.Text != "":
		text = msg.Text
	default:
		return
	}

	chatType := msg.Chat.Type
	c.Publish(bus.Message{
		Platform:   bus.PlatformTelegram,
		MessageID:  strconv.Itoa(msg.MessageID),
		Text:       text,
		ReceivedAt: time.Unix(msg.Date, 0),
		IsGroup:    chatType == telego.ChatTypeGroup || chatType == telego.ChatTypeSupergroup,
	})
}

// photoText downloads the attachment and runs it through the extractor.
// Every failure degrades to an empty string so the message still proceeds
// with its caption.
func (c *TelegramChannel) photoText(fileID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), c.ocrTimeout)
	defer cancel()

	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		c.Logger().Warn("resolving photo file", zap.Error(err))
		return ""
	}

	data, err := c.download(ctx, c.bot.FileDownloadURL(file.FilePath))
	if err != nil {
		c.Logger().Warn("downloading photo", zap.Error(err))
		return ""
	}

	text, err := c.engine.ExtractBytes(ctx, data)
	if err != nil {
		c.Logger().Warn("photo text recovery failed", zap.Error(err))
		return ""
	}
	return text
}

func (c *TelegramChannel) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
