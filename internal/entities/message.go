package entities

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Inbound channels
const (
	ChannelWhatsApp       = "whatsapp"        // Cloud API webhook
	ChannelWhatsAppDevice = "whatsapp_device" // linked device (whatsmeow)
	ChannelTelegram       = "telegram"
	ChannelWeb            = "web" // dashboard simulator
)

// InboundMessage is a single event delivered by a channel.
type InboundMessage struct {
	SenderID   string `json:"from"`
	Text       string `json:"text"`
	BusinessID string `json:"business_id"`
	Channel    string `json:"channel"`
}

// Message is one persisted line of a conversation. Append-only.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Conversation is unique per (BusinessID, ContactID).
type Conversation struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	ContactID  string    `json:"contact_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Intent is the classification record of one message.
type Intent struct {
	ID         string         `json:"id"`
	MessageID  string         `json:"message_id"`
	IntentName string         `json:"intent_name"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
	CreatedAt  time.Time      `json:"created_at"`
}

// OutboundMessage is a reply handed to a Messenger.
type OutboundMessage struct {
	BusinessID string
	Channel    string
	Recipient  string
	Text       string
}

// DeliveryReceipt describes an accepted send. Mock is set when no live
// integration is configured for the channel.
type DeliveryReceipt struct {
	Channel   string `json:"channel"`
	MessageID string `json:"message_id,omitempty"`
	Mock      bool   `json:"mock"`
}
