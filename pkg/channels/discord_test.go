package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/config"
)

func TestStripTrailingMeta(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bitcoin hits $50k [img]https://x.com/a.jpg", "Bitcoin hits $50k "},
		{"plain text, no tag", "plain text, no tag"},
		{"[leading tag only]", ""},
		{"", ""},
		{"two [tags] here [too]", "two "},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripTrailingMeta(tt.in), "input %q", tt.in)
	}
}

func TestStripBotSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"John• TweetShift (12345)", "John"},
		{"Alice", "Alice"},
		{"• TweetShift (1)", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripBotSuffix(tt.in), "input %q", tt.in)
	}
}

func TestExtractImageURL(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		found bool
	}{
		{"see [img]https://x.com/a.jpg done", "https://x.com/a.jpg", true},
		{"https://example.com/pic.PNG trailing", "https://example.com/pic.PNG", true},
		{"ftp://files.example.com/scan.bmp", "ftp://files.example.com/scan.bmp", true},
		{"no links here", "", false},
		{"https://example.com/page.html", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, found := extractImageURL(tt.in)
		assert.Equal(t, tt.found, found, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

type stubEngine struct {
	text string
	err  error
}

func (e *stubEngine) ExtractURL(context.Context, string) (string, error) { return e.text, e.err }

func (e *stubEngine) ExtractBytes(context.Context, []byte) (string, error) { return e.text, e.err }

func discordMessage(id, content, username string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        id,
			Content:   content,
			Author:    &discordgo.User{ID: "u1", Username: username},
			GuildID:   "g1",
			Timestamp: time.Now(),
		},
	}
}

func TestImageTextAppended(t *testing.T) {
	b := bus.NewMessageBus()
	t.Cleanup(b.Close)
	c := NewDiscordChannel(config.DiscordConfig{Token: "t"}, b,
		&stubEngine{text: "chart: BTC 50k"}, time.Second, zap.NewNop())

	c.onMessageCreate(&discordgo.Session{}, discordMessage(
		"m1", "Bitcoin hits $50k [img]https://cdn.example.com/chart.jpg", "John• TweetShift (1)"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "Bitcoin hits $50k chart: BTC 50k", msg.Text)
	assert.Equal(t, "https://cdn.example.com/chart.jpg", msg.ImageURL)
	assert.Equal(t, "John", msg.Author)
	assert.Equal(t, bus.PlatformTwitter, msg.Platform)
}

// A failed extraction degrades to the native text; the message still
// publishes with its image URL intact.
func TestMessageSurvivesExtractorFailure(t *testing.T) {
	b := bus.NewMessageBus()
	t.Cleanup(b.Close)
	c := NewDiscordChannel(config.DiscordConfig{Token: "t"}, b,
		&stubEngine{err: errors.New("ocr service down")}, time.Second, zap.NewNop())

	c.onMessageCreate(&discordgo.Session{}, discordMessage(
		"m2", "Bitcoin hits $50k [img]https://cdn.example.com/chart.jpg", "John• TweetShift (1)"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "Bitcoin hits $50k ", msg.Text)
	assert.Equal(t, "https://cdn.example.com/chart.jpg", msg.ImageURL)
}
