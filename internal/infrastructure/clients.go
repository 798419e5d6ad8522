package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"replygate/internal/config"
	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

// WhatsAppBusinessClient sends replies through the WhatsApp Cloud API.
// Without a usable credential every send is a logged no-op.
type WhatsAppBusinessClient struct {
	cfg        config.WhatsAppConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func NewWhatsAppBusinessClient(cfg config.WhatsAppConfig, log zerolog.Logger) *WhatsAppBusinessClient {
	limit := rate.Limit(cfg.SendRate)
	if cfg.SendRate <= 0 {
		limit = rate.Inf
	}
	return &WhatsAppBusinessClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		log:        log.With().Str("component", "whatsapp_cloud").Logger(),
	}
}

var _ interfaces.Messenger = (*WhatsAppBusinessClient)(nil)

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (w *WhatsAppBusinessClient) SendMessage(ctx context.Context, msg entities.OutboundMessage) (entities.DeliveryReceipt, error) {
	receipt := entities.DeliveryReceipt{Channel: entities.ChannelWhatsApp}
	if !w.cfg.Live() {
		w.log.Warn().Str("to", msg.Recipient).Msg("WhatsApp API not configured or using placeholder. Skipping real call.")
		receipt.Mock = true
		return receipt, nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return receipt, fmt.Errorf("send rate limit: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(w.cfg.GraphURL, "/"), w.cfg.APIVersion, w.cfg.PhoneNumberID)
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.Recipient,
		"type":              "text",
		"text": map[string]string{
			"body": msg.Text,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return receipt, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return receipt, err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return receipt, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return receipt, fmt.Errorf("whatsapp cloud api: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var out cloudSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && len(out.Messages) > 0 {
		receipt.MessageID = out.Messages[0].ID
	}
	return receipt, nil
}

// TelegramClient is a single bot bound to one business. A nil Bot means
// the token was missing or rejected; sends then become no-ops.
type TelegramClient struct {
	Bot        *tgbotapi.BotAPI
	BusinessID string
	log        zerolog.Logger
}

func NewTelegramClient(token, businessID string, log zerolog.Logger) *TelegramClient {
	log = log.With().Str("component", "telegram").Logger()
	if token == "" {
		return &TelegramClient{BusinessID: businessID, log: log}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram bot token issue, Telegram features disabled")
		return &TelegramClient{BusinessID: businessID, log: log}
	}
	return &TelegramClient{Bot: bot, BusinessID: businessID, log: log}
}

var _ interfaces.Messenger = (*TelegramClient)(nil)

func (t *TelegramClient) SendMessage(ctx context.Context, msg entities.OutboundMessage) (entities.DeliveryReceipt, error) {
	receipt := entities.DeliveryReceipt{Channel: entities.ChannelTelegram}
	if t.Bot == nil {
		t.log.Warn().Str("to", msg.Recipient).Msg("Telegram not configured. Skipping real call.")
		receipt.Mock = true
		return receipt, nil
	}
	chatID, err := strconv.ParseInt(msg.Recipient, 10, 64)
	if err != nil {
		return receipt, fmt.Errorf("invalid telegram chat id %q: %w", msg.Recipient, err)
	}
	sent, err := t.Bot.Send(tgbotapi.NewMessage(chatID, msg.Text))
	if err != nil {
		return receipt, err
	}
	receipt.MessageID = strconv.Itoa(sent.MessageID)
	return receipt, nil
}

// Listen polls for updates until ctx is done and hands every text message
// to handle.
func (t *TelegramClient) Listen(ctx context.Context, handle func(entities.InboundMessage)) {
	if t.Bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.Bot.GetUpdatesChan(u)
	t.log.Info().Str("bot", t.Bot.Self.UserName).Msg("Telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.Bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.IsCommand() {
				continue
			}
			handle(entities.InboundMessage{
				SenderID:   strconv.FormatInt(update.Message.Chat.ID, 10),
				Text:       update.Message.Text,
				BusinessID: t.BusinessID,
				Channel:    entities.ChannelTelegram,
			})
		}
	}
}

// WebSink accepts replies for the dashboard simulator; nothing leaves the process.
type WebSink struct {
	log zerolog.Logger
}

func NewWebSink(log zerolog.Logger) *WebSink {
	return &WebSink{log: log.With().Str("component", "web_sink").Logger()}
}

func (s *WebSink) SendMessage(_ context.Context, msg entities.OutboundMessage) (entities.DeliveryReceipt, error) {
	s.log.Debug().Str("to", msg.Recipient).Str("business_id", msg.BusinessID).Msg("simulated reply")
	return entities.DeliveryReceipt{Channel: entities.ChannelWeb, Mock: true}, nil
}
