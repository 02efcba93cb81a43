package channels

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/config"
	"github.com/offchainlab/harvestd/pkg/ocr"
)

// The watched Discord channels carry tweets republished by a forwarding
// bot. The bot appends bracketed metadata to the message body and an
// attribution suffix to the author name; both are stripped during
// normalization, and archived records carry the origin network as their
// platform.
const botAttributionSuffix = "• TweetShift"

var imageURLPattern = regexp.MustCompile(`(?i)(?:https?|ftp)://[^\s/$.?#][^\s]*\.(?:jpg|jpeg|png|gif|bmp)`)

type DiscordChannel struct {
	*BaseChannel
	cfg        config.DiscordConfig
	engine     ocr.Engine
	ocrTimeout time.Duration
	session    *discordgo.Session
}

func NewDiscordChannel(
	cfg config.DiscordConfig,
	b *bus.MessageBus,
	engine ocr.Engine,
	ocrTimeout time.Duration,
	logger *zap.Logger,
) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", b, logger),
		cfg:         cfg,
		engine:      engine,
		ocrTimeout:  ocrTimeout,
	}
}

func (c *DiscordChannel) Start(_ context.Context) error {
	session, err := discordgo.New("Bot " + c.cfg.Token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	c.session = session
	c.SetRunning(true)
	c.Logger().Info("discord gateway connected")
	return nil
}

func (c *DiscordChannel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	text := stripTrailingMeta(m.Content)
	author := stripBotSuffix(m.Author.Username)

	imageURL, found := extractImageURL(m.Content)
	if found {
		ctx, cancel := context.WithTimeout(context.Background(), c.ocrTimeout)
		recovered, err := c.engine.ExtractURL(ctx, imageURL)
		cancel()
		if err != nil {
			// Degrade to native text only.
			c.Logger().Warn("image text recovery failed",
				zap.String("url", imageURL), zap.Error(err))
		} else {
			text += recovered
		}
	}

	c.Publish(bus.Message{
		Platform:   bus.PlatformTwitter,
		MessageID:  m.ID,
		Author:     author,
		Text:       text,
		ImageURL:   imageURL,
		ReceivedAt: m.Timestamp,
		IsGroup:    m.GuildID != "",
	})
}

// stripTrailingMeta cuts the message body at the first bracketed tag the
// forwarding bot appends, e.g. "Bitcoin hits $50k [img]https://…".
func stripTrailingMeta(content string) string {
	if i := strings.Index(content, "["); i >= 0 {
		return content[:i]
	}
	return content
}

// stripBotSuffix recovers the human-readable forwarding-account name from
// a display name like "John• TweetShift (12345)". Names without the
// suffix pass through unchanged.
func stripBotSuffix(name string) string {
	if i := strings.Index(name, botAttributionSuffix); i >= 0 {
		return name[:i]
	}
	return name
}

// extractImageURL finds an embedded image link by extension match over the
// common image formats.
func extractImageURL(text string) (string, bool) {
	match := imageURLPattern.FindString(text)
	return match, match != ""
}
