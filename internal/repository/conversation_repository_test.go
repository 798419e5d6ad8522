package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replygate/internal/entities"
)

func TestConversationRepository_FindOrCreate_SameRowTwice(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewConversationRepository(mock)
	now := time.Now()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`INSERT INTO conversations .* ON CONFLICT \(business_id, contact_id\)`).
			WithArgs(pgxmock.AnyArg(), "biz", "+15550001").
			WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "contact_id", "created_at"}).
				AddRow("conv-1", "biz", "+15550001", now))
	}

	first, err := repo.FindOrCreate(context.Background(), "biz", "+15550001")
	require.NoError(t, err)
	second, err := repo.FindOrCreate(context.Background(), "biz", "+15550001")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_SaveMessage(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewConversationRepository(mock)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(pgxmock.AnyArg(), "conv-1", entities.RoleUser, "hello", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	msg := &entities.Message{ConversationID: "conv-1", Role: entities.RoleUser, Content: "hello"}
	require.NoError(t, repo.SaveMessage(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, now, msg.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_SaveIntent_Duplicate(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewConversationRepository(mock)

	mock.ExpectQuery(`INSERT INTO intents`).
		WithArgs(pgxmock.AnyArg(), "msg-1", "complaint", 0.9, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.SaveIntent(context.Background(), &entities.Intent{MessageID: "msg-1", IntentName: "complaint", Confidence: 0.9})
	require.ErrorIs(t, err, entities.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_RecentMessages(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewConversationRepository(mock)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, conversation_id, role, content, metadata, created_at FROM messages .* ORDER BY created_at DESC`).
		WithArgs("conv-1", 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "role", "content", "metadata", "created_at"}).
			AddRow("m2", "conv-1", "assistant", "hi there", []byte(`{"mode":"auto"}`), now).
			AddRow("m1", "conv-1", "user", "hi", []byte(nil), now.Add(-time.Second)))

	msgs, err := repo.RecentMessages(context.Background(), "conv-1", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "auto", msgs[0].Metadata["mode"])
	assert.Nil(t, msgs[1].Metadata)
	require.NoError(t, mock.ExpectationsWereMet())
}
