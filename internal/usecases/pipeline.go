package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
	"replygate/internal/metrics"
)

// Pipeline outcomes
const (
	StatusSuccess = "SUCCESS"
	StatusIgnored = "IGNORED"
)

type PipelineResult struct {
	Status        string                   `json:"status"`
	From          string                   `json:"from"`
	Text          string                   `json:"text"`
	Channel       string                   `json:"channel"`
	Analysis      *entities.AnalysisResult `json:"analysis,omitempty"`
	NeedsApproval bool                     `json:"needs_approval"`
	ApprovalID    *string                  `json:"approval_id"`
	ActionStatus  entities.ActionStatus    `json:"action_status,omitempty"`
}

type PipelineOptions struct {
	DefaultBusinessID string
	HistoryLimit      int
}

// MessagePipeline turns one inbound message into either an auto-reply or
// a pending approval.
type MessagePipeline struct {
	businesses    interfaces.BusinessStore
	conversations *ConversationService
	classifier    Classifier
	policy        *PolicyEngine
	approvals     *ApprovalWorkflow
	executor      *ActionExecutor
	opts          PipelineOptions
	log           zerolog.Logger
}

func NewMessagePipeline(
	businesses interfaces.BusinessStore,
	conversations *ConversationService,
	classifier Classifier,
	policy *PolicyEngine,
	approvals *ApprovalWorkflow,
	executor *ActionExecutor,
	opts PipelineOptions,
	log zerolog.Logger,
) *MessagePipeline {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &MessagePipeline{
		businesses:    businesses,
		conversations: conversations,
		classifier:    classifier,
		policy:        policy,
		approvals:     approvals,
		executor:      executor,
		opts:          opts,
		log:           log.With().Str("component", "pipeline").Logger(),
	}
}

// ProcessMessage returns IGNORED for messages without text. Storage errors
// are returned; classifier and send failures are not.
func (p *MessagePipeline) ProcessMessage(ctx context.Context, in entities.InboundMessage) (*PipelineResult, error) {
	if in.Channel == "" {
		in.Channel = entities.ChannelWhatsApp
	}
	if in.BusinessID == "" {
		in.BusinessID = p.opts.DefaultBusinessID
	}
	result := &PipelineResult{From: in.SenderID, Text: in.Text, Channel: in.Channel}

	if strings.TrimSpace(in.Text) == "" || in.SenderID == "" {
		metrics.InboundMessages.WithLabelValues(in.Channel, "ignored").Inc()
		result.Status = StatusIgnored
		return result, nil
	}

	res, err := p.process(ctx, in, result)
	if err != nil {
		metrics.InboundMessages.WithLabelValues(in.Channel, "error").Inc()
		p.log.Error().Err(err).Str("business_id", in.BusinessID).Str("from", in.SenderID).Msg("message processing failed")
		return nil, err
	}
	outcome := "auto"
	if res.NeedsApproval {
		outcome = "approval"
	}
	metrics.InboundMessages.WithLabelValues(in.Channel, outcome).Inc()
	return res, nil
}

func (p *MessagePipeline) process(ctx context.Context, in entities.InboundMessage, result *PipelineResult) (*PipelineResult, error) {
	bc, err := p.businessContext(ctx, in.BusinessID)
	if err != nil {
		return nil, err
	}

	conv, err := p.conversations.FindOrCreateConversation(ctx, in.BusinessID, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	msg, err := p.conversations.SaveMessage(ctx, conv.ID, entities.RoleUser, in.Text, map[string]any{"channel": in.Channel})
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	history, err := p.conversations.GetContext(ctx, conv.ID, p.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("conversation context: %w", err)
	}

	analysis := p.classifier.Classify(ctx, in.Text, bc, history)
	if _, err := p.conversations.LogIntent(ctx, msg.ID, analysis); err != nil {
		return nil, fmt.Errorf("log intent: %w", err)
	}
	result.Analysis = &analysis

	needsApproval, err := p.policy.RequiresApproval(ctx, in.BusinessID, analysis.Intent, analysis.Confidence)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	result.NeedsApproval = needsApproval

	replyText := analysis.SuggestedReply
	if strings.TrimSpace(replyText) == "" {
		replyText = ReplyForIntent(analysis.Intent)
	}
	log := p.log.With().Str("business_id", in.BusinessID).Str("intent", analysis.Intent).Logger()

	if needsApproval {
		rule, _, err := p.approvals.EnsureRule(ctx, in.BusinessID, analysis.Intent)
		if err != nil {
			return nil, err
		}
		approval, err := p.approvals.CreateApprovalForRule(ctx, rule, msg.ID, entities.ProposedAction{
			ReplyText:    replyText,
			OriginalText: in.Text,
			Recipient:    in.SenderID,
			Channel:      in.Channel,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("approval_id", approval.ID).Msg("intent requires approval, held for review")
		result.ApprovalID = &approval.ID
		result.Status = StatusSuccess
		return result, nil
	}

	log.Info().Msg("intent is safe, sending auto-reply")
	entry, err := p.executor.ExecuteAutoAction(ctx, Reply{
		BusinessID: in.BusinessID,
		Channel:    in.Channel,
		Recipient:  in.SenderID,
		Text:       replyText,
		Intent:     analysis.Intent,
	})
	if err != nil {
		return nil, err
	}
	result.ActionStatus = entry.Status
	result.Status = StatusSuccess
	return result, nil
}

// businessContext rejects unknown tenants before anything is stored, since
// every conversation row references its business.
func (p *MessagePipeline) businessContext(ctx context.Context, businessID string) (BusinessContext, error) {
	b, err := p.businesses.GetByID(ctx, businessID)
	if err != nil {
		return BusinessContext{}, fmt.Errorf("business context: %w", err)
	}
	return ContextFromBusiness(b), nil
}

// ReplyForIntent is used when the classifier suggested no reply.
func ReplyForIntent(intent string) string {
	switch strings.ToLower(intent) {
	case entities.IntentScheduleMeeting:
		return "I'd be happy to set up a meeting. What day and time suit you best? 📅"
	case entities.IntentGetPricing:
		return "Thanks for asking about pricing! Our team will share the latest details with you shortly. 💬"
	case entities.IntentHumanAgent:
		return "I'm connecting you with one of our teammates. They'll be with you shortly. 🙏"
	default:
		return "Thank you for reaching out! I've received your message and am processing your request. 🤖"
	}
}
