package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
	"github.com/offchainlab/harvestd/pkg/config"
	"github.com/offchainlab/harvestd/pkg/ocr"
)

const (
	urlVerificationType = "url_verification"
	messageReceiveEvent = "im.message.receive_v1"

	// Fixed acknowledgment bodies; the HTTP response never reflects
	// downstream classification latency.
	successBody = `{"success": true}`
	failedBody  = `{"success": false}`

	readinessBody = "Feishu service start success!"
)

// FeishuChannel receives events over an HTTP webhook and uses the Lark
// open API for everything outbound: message send, image download, and
// contact name lookup.
type FeishuChannel struct {
	*BaseChannel
	cfg        config.FeishuConfig
	gateway    config.GatewayConfig
	client     *lark.Client
	server     *http.Server
	engine     ocr.Engine
	ocrTimeout time.Duration

	// imageText is swapped out in tests; the default implementation
	// downloads the message resource and runs OCR on the bytes.
	imageText func(ctx context.Context, messageID, imageKey string) (string, error)
}

func NewFeishuChannel(
	cfg config.FeishuConfig,
	gateway config.GatewayConfig,
	b *bus.MessageBus,
	engine ocr.Engine,
	ocrTimeout time.Duration,
	logger *zap.Logger,
) *FeishuChannel {
	c := &FeishuChannel{
		BaseChannel: NewBaseChannel("feishu", b, logger),
		cfg:         cfg,
		gateway:     gateway,
		client:      lark.NewClient(cfg.AppID, cfg.AppSecret),
		engine:      engine,
		ocrTimeout:  ocrTimeout,
	}
	c.imageText = c.fetchImageText
	return c
}

func (c *FeishuChannel) Start(_ context.Context) error {
	c.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", c.gateway.Host, c.gateway.Port),
		Handler:           c.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger().Error("webhook server failed", zap.Error(err))
			c.SetRunning(false)
		}
	}()

	c.SetRunning(true)
	c.Logger().Info("webhook listening", zap.String("addr", c.server.Addr))
	return nil
}

func (c *FeishuChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func (c *FeishuChannel) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", func(g *gin.Context) {
		g.String(http.StatusOK, readinessBody)
	})
	r.POST("/", c.handleEvent)
	return r
}

// Webhook payload shapes. Only the fields the pipeline needs are bound;
// everything else in the envelope is ignored.
type eventEnvelope struct {
	Type      string        `json:"type"`
	Challenge string        `json:"challenge"`
	Header    *eventHeader  `json:"header"`
	Event     *messageEvent `json:"event"`
}

type eventHeader struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Token     string `json:"token"`
}

type messageEvent struct {
	Sender  *eventSender  `json:"sender"`
	Message *eventMessage `json:"message"`
}

type eventSender struct {
	SenderID struct {
		OpenID string `json:"open_id"`
		UserID string `json:"user_id"`
	} `json:"sender_id"`
}

type eventMessage struct {
	MessageID   string         `json:"message_id"`
	ChatID      string         `json:"chat_id"`
	ChatType    string         `json:"chat_type"` // "group" | "p2p"
	MessageType string         `json:"message_type"`
	CreateTime  string         `json:"create_time"` // epoch millis, as a string
	Content     string         `json:"content"`     // nested JSON document
	Mentions    []eventMention `json:"mentions"`
}

type eventMention struct {
	Name string `json:"name"`
}

// messageContent is the decoded form of eventMessage.Content.
type messageContent struct {
	Text     string `json:"text"`
	ImageKey string `json:"image_key"`
}

func parseMessageContent(raw string) (messageContent, error) {
	var content messageContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return messageContent{}, fmt.Errorf("decoding message content: %w", err)
	}
	return content, nil
}

// parseCreateTime converts the event's millisecond-epoch string. A missing
// or malformed value yields the zero time: the message reads as arbitrarily
// old, so the relay freshness gate rejects it while archival, which never
// looks at the timestamp, proceeds.
func parseCreateTime(raw string) time.Time {
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

func (c *FeishuChannel) handleEvent(g *gin.Context) {
	var env eventEnvelope
	if err := g.ShouldBindJSON(&env); err != nil {
		c.Logger().Warn("unparseable webhook payload", zap.Error(err))
		g.String(http.StatusOK, failedBody)
		return
	}

	// One-time endpoint verification handshake.
	if env.Type == urlVerificationType {
		g.JSON(http.StatusOK, gin.H{"challenge": env.Challenge})
		return
	}

	if env.Header == nil || env.Header.Token != c.cfg.VerificationToken {
		c.Logger().Warn("webhook token mismatch")
		g.String(http.StatusOK, failedBody)
		return
	}

	if env.Header.EventType != messageReceiveEvent ||
		env.Event == nil || env.Event.Message == nil || env.Event.Sender == nil {
		c.Logger().Warn("invalid message event", zap.String("event_id", env.Header.EventID))
		g.String(http.StatusOK, failedBody)
		return
	}

	m := env.Event.Message
	isGroup := false
	switch m.ChatType {
	case "group":
		if !c.mentioned(m) {
			// Not addressed to the bot; acknowledge and ignore.
			g.String(http.StatusOK, successBody)
			return
		}
		isGroup = true
	case "p2p":
	default:
		g.String(http.StatusOK, successBody)
		return
	}

	// Acknowledge before any OCR or classification work happens.
	go c.ingest(env.Event, isGroup)
	g.String(http.StatusOK, successBody)
}

// mentioned reports whether the group message explicitly addresses the
// bot. With no configured bot name any mention counts.
func (c *FeishuChannel) mentioned(m *eventMessage) bool {
	if len(m.Mentions) == 0 {
		return false
	}
	if c.cfg.BotName == "" {
		return true
	}
	return m.Mentions[0].Name == c.cfg.BotName
}

// ingest normalizes an accepted event and publishes it. Runs off the
// request goroutine.
func (c *FeishuChannel) ingest(event *messageEvent, isGroup bool) {
	m := event.Message

	if m.MessageType != "text" && m.MessageType != "image" {
		return
	}

	content, err := parseMessageContent(m.Content)
	if err != nil {
		c.Logger().Warn("skipping message with malformed content",
			zap.String("message_id", m.MessageID), zap.Error(err))
		return
	}

	text := content.Text
	if m.MessageType == "image" && content.ImageKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), c.ocrTimeout)
		recovered, err := c.imageText(ctx, m.MessageID, content.ImageKey)
		cancel()
		if err != nil {
			c.Logger().Warn("image text recovery failed",
				zap.String("message_id", m.MessageID), zap.Error(err))
		} else {
			text = recovered
		}
	}

	author := event.Sender.SenderID.UserID
	if author == "" {
		author = event.Sender.SenderID.OpenID
	}

	c.Publish(bus.Message{
		Platform:   bus.PlatformFeishu,
		MessageID:  m.MessageID,
		Author:     author,
		Text:       text,
		ReceivedAt: parseCreateTime(m.CreateTime),
		IsGroup:    isGroup,
	})
}

// fetchImageText downloads the message's image resource and runs it
// through the shared extractor.
func (c *FeishuChannel) fetchImageText(ctx context.Context, messageID, imageKey string) (string, error) {
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(imageKey).
		Type("image").
		Build()

	resp, err := c.client.Im.V1.MessageResource.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("downloading image: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("downloading image: code=%d msg=%s", resp.Code, resp.Msg)
	}

	data, err := io.ReadAll(resp.File)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	return c.engine.ExtractBytes(ctx, data)
}

// SendText posts a text message to a chat (group addressing mode).
func (c *FeishuChannel) SendText(ctx context.Context, chatID, text string) error {
	return c.send(ctx, "chat_id", chatID, text)
}

// SendDirect posts a text message to a user (direct addressing mode).
func (c *FeishuChannel) SendDirect(ctx context.Context, openID, text string) error {
	return c.send(ctx, "open_id", openID, text)
}

func (c *FeishuChannel) send(ctx context.Context, receiveIDType, receiveID, text string) error {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := c.client.Im.V1.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("sending message: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// ResolveName looks up a sender's display name through the contact API.
func (c *FeishuChannel) ResolveName(ctx context.Context, userID string) (string, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(userID).
		UserIdType("user_id").
		DepartmentIdType("open_department_id").
		Build()

	resp, err := c.client.Contact.V3.User.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("fetching user: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("fetching user: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.User == nil || resp.Data.User.Name == nil {
		return "", errors.New("fetching user: empty name")
	}
	return *resp.Data.User.Name, nil
}
