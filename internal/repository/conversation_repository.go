package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

type ConversationRepository struct {
	db DB
}

func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

var _ interfaces.ConversationStore = (*ConversationRepository)(nil)

// FindOrCreate relies on the (business_id, contact_id) unique key, so
// concurrent first contacts resolve to the same row.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, businessID, contactID string) (*entities.Conversation, error) {
	var c entities.Conversation
	err := r.db.QueryRow(ctx,
		`INSERT INTO conversations (id, business_id, contact_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (business_id, contact_id) DO UPDATE SET contact_id = EXCLUDED.contact_id
		 RETURNING id, business_id, contact_id, created_at`,
		uuid.NewString(), businessID, contactID).Scan(&c.ID, &c.BusinessID, &c.ContactID, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err, "conversation", businessID+"/"+contactID)
	}
	return &c, nil
}

func (r *ConversationRepository) FindByContact(ctx context.Context, businessID, contactID string) (*entities.Conversation, error) {
	var c entities.Conversation
	err := r.db.QueryRow(ctx,
		`SELECT id, business_id, contact_id, created_at FROM conversations
		 WHERE business_id = $1 AND contact_id = $2`,
		businessID, contactID).Scan(&c.ID, &c.BusinessID, &c.ContactID, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err, "conversation", businessID+"/"+contactID)
	}
	return &c, nil
}

func (r *ConversationRepository) SaveMessage(ctx context.Context, msg *entities.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var metadata []byte
	if msg.Metadata != nil {
		var err error
		if metadata, err = marshalJSON(msg.Metadata); err != nil {
			return fmt.Errorf("message metadata: %w", err)
		}
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, metadata).Scan(&msg.CreatedAt)
	return mapError(err, "message", msg.ID)
}

// SaveIntent fails with ErrAlreadyExists when the message already has one.
func (r *ConversationRepository) SaveIntent(ctx context.Context, intent *entities.Intent) error {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	ents, err := marshalJSON(intent.Entities)
	if err != nil {
		return fmt.Errorf("intent entities: %w", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO intents (id, message_id, intent_name, confidence, entities)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		intent.ID, intent.MessageID, intent.IntentName, intent.Confidence, ents).Scan(&intent.CreatedAt)
	return mapError(err, "intent", intent.MessageID)
}

// RecentMessages returns up to limit messages, newest first.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, mapError(err, "messages", conversationID)
	}
	defer rows.Close()

	var out []entities.Message
	for rows.Next() {
		var (
			m        entities.Message
			metadata []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Metadata = unmarshalJSON(metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}
