package bus

import "time"

// Platform names used as the first half of the dedup key and as the
// "platform" field of archived records.
const (
	PlatformTwitter  = "Twitter" // Discord forwarding accounts republish tweets
	PlatformFeishu   = "Feishu"
	PlatformTelegram = "Telegram"
)

// Message is the canonical, platform-independent form of an inbound chat
// message. Adapters produce exactly one Message per accepted raw event.
type Message struct {
	Platform   string    `json:"platform"`
	MessageID  string    `json:"message_id"`
	Author     string    `json:"author,omitempty"`
	Text       string    `json:"text"`
	ImageURL   string    `json:"image_url,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	IsGroup    bool      `json:"is_group"`
}

// DedupKey returns the (platform, message_id) identity used by the
// idempotency cache. MessageID is unique within its platform only.
func (m Message) DedupKey() string {
	return m.Platform + ":" + m.MessageID
}

// RelayPost is an outbound re-post of a relevant group message to the
// configured destination chat.
type RelayPost struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}
