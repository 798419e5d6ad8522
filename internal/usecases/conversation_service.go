package usecases

import (
	"context"
	"fmt"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

const defaultHistoryLimit = 5

type ConversationService struct {
	store interfaces.ConversationStore
}

func NewConversationService(store interfaces.ConversationStore) *ConversationService {
	return &ConversationService{store: store}
}

func (s *ConversationService) FindOrCreateConversation(ctx context.Context, businessID, contactID string) (*entities.Conversation, error) {
	if businessID == "" || contactID == "" {
		return nil, fmt.Errorf("conversation key: %w", entities.ErrValidation)
	}
	return s.store.FindOrCreate(ctx, businessID, contactID)
}

func (s *ConversationService) FindConversation(ctx context.Context, businessID, contactID string) (*entities.Conversation, error) {
	return s.store.FindByContact(ctx, businessID, contactID)
}

func (s *ConversationService) SaveMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) (*entities.Message, error) {
	if role != entities.RoleUser && role != entities.RoleAssistant {
		return nil, fmt.Errorf("message role %q: %w", role, entities.ErrValidation)
	}
	msg := &entities.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// LogIntent must be called at most once per message.
func (s *ConversationService) LogIntent(ctx context.Context, messageID string, analysis entities.AnalysisResult) (*entities.Intent, error) {
	intent := &entities.Intent{
		MessageID:  messageID,
		IntentName: analysis.Intent,
		Confidence: clamp01(analysis.Confidence),
		Entities:   analysis.Entities,
	}
	if err := s.store.SaveIntent(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// GetContext returns the latest messages, newest first.
func (s *ConversationService) GetContext(ctx context.Context, conversationID string, limit int) ([]entities.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.store.RecentMessages(ctx, conversationID, limit)
}
