package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

// ErrActionUnlogged marks a send that happened but whose action log could
// not be written. Retrying it would deliver the reply again.
var ErrActionUnlogged = errors.New("action sent but not logged")

const logWriteRetries = 3

// Reply is an outbound answer to one contact.
type Reply struct {
	BusinessID string
	Channel    string
	Recipient  string
	Text       string
	Intent     string
}

// ActionExecutor sends replies and writes exactly one ActionLog per attempt.
// Send failures are logged as FAILED rows and never returned.
type ActionExecutor struct {
	messenger     interfaces.Messenger
	approvals     interfaces.ApprovalStore
	logs          interfaces.ActionLogStore
	conversations interfaces.ConversationStore
	log           zerolog.Logger

	logBackoff func() backoff.BackOff
}

// NewActionExecutor accepts a nil conversation store; replies are then not
// appended to the conversation.
func NewActionExecutor(messenger interfaces.Messenger, approvals interfaces.ApprovalStore, logs interfaces.ActionLogStore, conversations interfaces.ConversationStore, log zerolog.Logger) *ActionExecutor {
	return &ActionExecutor{
		messenger:     messenger,
		approvals:     approvals,
		logs:          logs,
		conversations: conversations,
		log:           log.With().Str("component", "executor").Logger(),
		logBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

// ExecuteAction sends the reply held by an APPROVED approval. Missing or
// unapproved approvals and approvals that already ran are skipped.
func (e *ActionExecutor) ExecuteAction(ctx context.Context, approvalID string) error {
	a, err := e.approvals.GetByID(ctx, approvalID)
	if errors.Is(err, entities.ErrNotFound) {
		e.log.Warn().Str("approval_id", approvalID).Msg("cannot execute action: approval not found")
		return nil
	}
	if err != nil {
		return err
	}
	if a.Status != entities.ApprovalApproved {
		e.log.Warn().Str("approval_id", approvalID).Str("status", string(a.Status)).Msg("cannot execute action: approval not approved")
		return nil
	}

	done, err := e.logs.ExistsForApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if done {
		e.log.Info().Str("approval_id", approvalID).Msg("action already executed")
		return nil
	}
	claimed, err := e.approvals.ClaimDispatch(ctx, approvalID)
	if err != nil {
		return err
	}
	if !claimed {
		e.log.Info().Str("approval_id", approvalID).Msg("action already dispatched")
		return nil
	}

	reply := Reply{
		BusinessID: a.BusinessID,
		Channel:    a.ProposedAction.Channel,
		Recipient:  a.ProposedAction.Recipient,
		Text:       a.ProposedAction.ReplyText,
		Intent:     a.IntentName,
	}
	id := a.ID
	_, err = e.execute(ctx, reply, "approved", &id, a.ReviewedBy)
	return err
}

// ExecuteAutoAction sends without review.
func (e *ActionExecutor) ExecuteAutoAction(ctx context.Context, reply Reply) (*entities.ActionLog, error) {
	return e.execute(ctx, reply, "auto-reply", nil, nil)
}

func (e *ActionExecutor) execute(ctx context.Context, reply Reply, mode string, approvalID, performedBy *string) (*entities.ActionLog, error) {
	if reply.Channel == "" {
		reply.Channel = entities.ChannelWhatsApp
	}
	log := e.log.With().Str("business_id", reply.BusinessID).Str("channel", reply.Channel).Str("to", reply.Recipient).Str("mode", mode).Logger()

	receipt, sendErr := e.messenger.SendMessage(ctx, entities.OutboundMessage{
		BusinessID: reply.BusinessID,
		Channel:    reply.Channel,
		Recipient:  reply.Recipient,
		Text:       reply.Text,
	})

	payload := map[string]any{
		"recipient_number": reply.Recipient,
		"intent":           reply.Intent,
		"mode":             mode,
		"channel":          reply.Channel,
	}
	if approvalID != nil {
		payload["approval_id"] = *approvalID
	}

	entry := &entities.ActionLog{
		BusinessID:  reply.BusinessID,
		ApprovalID:  approvalID,
		ActionType:  actionTypeFor(reply.Channel),
		PerformedBy: performedBy,
	}
	if sendErr != nil {
		log.Error().Err(sendErr).Msg("reply send failed")
		entry.Status = entities.ActionFailed
		payload["error"] = sendErr.Error()
	} else {
		entry.Status = entities.ActionSuccess
		payload["reply_text"] = reply.Text
		payload["mock"] = receipt.Mock
		if receipt.MessageID != "" {
			payload["message_id"] = receipt.MessageID
		}
	}
	entry.Payload = payload

	if err := e.writeLog(ctx, entry); err != nil {
		log.Error().Err(err).Bool("sent", sendErr == nil).Msg("action log lost")
		return nil, fmt.Errorf("%w: %w", ErrActionUnlogged, err)
	}
	if sendErr != nil {
		return entry, nil
	}

	log.Info().Str("action_log_id", entry.ID).Bool("mock", receipt.Mock).Msg("reply sent")
	e.appendToConversation(ctx, reply, mode, entry.ID)
	return entry, nil
}

// writeLog retries only the insert; the send it records is never repeated.
func (e *ActionExecutor) writeLog(ctx context.Context, entry *entities.ActionLog) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(e.logBackoff(), logWriteRetries), ctx)
	return backoff.Retry(func() error {
		return e.logs.Create(ctx, entry)
	}, policy)
}

func (e *ActionExecutor) appendToConversation(ctx context.Context, reply Reply, mode, actionLogID string) {
	if e.conversations == nil {
		return
	}
	conv, err := e.conversations.FindByContact(ctx, reply.BusinessID, reply.Recipient)
	if err != nil {
		if !errors.Is(err, entities.ErrNotFound) {
			e.log.Warn().Err(err).Msg("could not load conversation for reply")
		}
		return
	}
	err = e.conversations.SaveMessage(ctx, &entities.Message{
		ConversationID: conv.ID,
		Role:           entities.RoleAssistant,
		Content:        reply.Text,
		Metadata:       map[string]any{"mode": mode, "action_log_id": actionLogID},
	})
	if err != nil {
		e.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("could not store reply message")
	}
}

func actionTypeFor(channel string) string {
	switch channel {
	case entities.ChannelTelegram:
		return entities.ActionTelegramReply
	case entities.ChannelWeb:
		return entities.ActionWebReply
	default:
		return entities.ActionWhatsAppReply
	}
}
