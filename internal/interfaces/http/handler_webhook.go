package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"replygate/internal/entities"
	"replygate/internal/usecases"
)

// webhookPayload is the subset of the Cloud API notification we read.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// VerifyWebhook answers Meta's subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode == "subscribe" && token == h.VerifyToken {
		h.log.Info().Msg("webhook verified")
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	h.log.Warn().Str("mode", mode).Msg("webhook verification failed")
	c.String(http.StatusForbidden, "Forbidden")
}

// ReceiveWebhook always answers 200 so Meta does not redeliver.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn().Err(err).Msg("unreadable webhook payload")
		c.JSON(http.StatusOK, gin.H{"error": "invalid payload"})
		return
	}

	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 || len(payload.Entry[0].Changes[0].Value.Messages) == 0 {
		c.String(http.StatusOK, "NOT_A_MESSAGE")
		return
	}
	msg := payload.Entry[0].Changes[0].Value.Messages[0]
	if msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" {
		c.String(http.StatusOK, "NO_TEXT_CONTENT")
		return
	}

	result, err := h.Pipeline.ProcessMessage(c.Request.Context(), entities.InboundMessage{
		SenderID: msg.From,
		Text:     TruncateString(SanitizeString(msg.Text.Body), MaxMessageLength),
		Channel:  entities.ChannelWhatsApp,
	})
	if err != nil {
		h.log.Error().Err(err).Str("from", msg.From).Msg("webhook processing failed")
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type simulateRequest struct {
	From    string `json:"from" binding:"required"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

type simulateResponse struct {
	*usecases.PipelineResult
	Mode string `json:"mode"`
}

var simulatedChannels = map[string]bool{
	entities.ChannelWhatsApp:       true,
	entities.ChannelWhatsAppDevice: true,
	entities.ChannelTelegram:       true,
	entities.ChannelWeb:            true,
}

// Simulate runs the pipeline for the caller's business as if the message
// had arrived on a channel.
func (h *Handler) Simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Channel == "" {
		req.Channel = entities.ChannelWhatsApp
	}
	if !simulatedChannels[req.Channel] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel " + req.Channel})
		return
	}

	id := identityFrom(c)
	h.log.Info().Str("business_id", id.BusinessID).Str("user", id.Email).Msg("simulation started")
	result, err := h.Pipeline.ProcessMessage(c.Request.Context(), entities.InboundMessage{
		SenderID:   req.From,
		Text:       TruncateString(SanitizeString(req.Text), MaxMessageLength),
		BusinessID: id.BusinessID,
		Channel:    req.Channel,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, simulateResponse{PipelineResult: result, Mode: "SIMULATED"})
}
