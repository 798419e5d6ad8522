package infrastructure

import (
	"context"
	"fmt"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
	"replygate/internal/metrics"
)

// ChannelRouter picks the Messenger registered for a reply's channel.
// Replies without a channel go out on WhatsApp.
type ChannelRouter struct {
	routes map[string]interfaces.Messenger
}

func NewChannelRouter() *ChannelRouter {
	return &ChannelRouter{routes: make(map[string]interfaces.Messenger)}
}

// Register is not safe to call once the router is in use.
func (r *ChannelRouter) Register(channel string, m interfaces.Messenger) *ChannelRouter {
	r.routes[channel] = m
	return r
}

var _ interfaces.Messenger = (*ChannelRouter)(nil)

func (r *ChannelRouter) SendMessage(ctx context.Context, msg entities.OutboundMessage) (entities.DeliveryReceipt, error) {
	channel := msg.Channel
	if channel == "" {
		channel = entities.ChannelWhatsApp
	}
	m, ok := r.routes[channel]
	if !ok {
		metrics.Deliveries.WithLabelValues(channel, "unrouted").Inc()
		return entities.DeliveryReceipt{Channel: channel}, fmt.Errorf("no messenger for channel %q", channel)
	}
	msg.Channel = channel
	receipt, err := m.SendMessage(ctx, msg)
	switch {
	case err != nil:
		metrics.Deliveries.WithLabelValues(channel, "failed").Inc()
	case receipt.Mock:
		metrics.Deliveries.WithLabelValues(channel, "mock").Inc()
	default:
		metrics.Deliveries.WithLabelValues(channel, "sent").Inc()
	}
	return receipt, err
}
