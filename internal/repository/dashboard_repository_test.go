package repository

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardRepository_Counts(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewDashboardRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM messages m JOIN conversations c ON c.id = m.conversation_id WHERE c.business_id = \$1`).
		WithArgs("biz").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM approvals a JOIN workflow_rules r`).
		WithArgs("PENDING", "biz").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT COALESCE\(AVG\(i.confidence\), 0\) FROM intents i`).
		WithArgs("biz").
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(0.75))

	n, err := repo.CountMessages(context.Background(), "biz")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = repo.CountPendingApprovals(context.Background(), "biz")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	avg, err := repo.AverageConfidence(context.Background(), "biz")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, avg, 1e-9)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardRepository_SearchMessages_EscapesPattern(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewDashboardRepository(mock)

	mock.ExpectQuery(`m.content ILIKE \$2 ORDER BY m.created_at DESC LIMIT 10`).
		WithArgs("biz", `%50\%%`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "contact_id", "role", "content", "created_at"}).
			AddRow("m1", "c1", "+1555", "user", "is there 50% off?", time.Now()))

	hits, err := repo.SearchMessages(context.Background(), "biz", "50%", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "+1555", hits[0].ContactID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardRepository_RecentActions(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewDashboardRepository(mock)
	approvalID := "ap-1"

	mock.ExpectQuery(`FROM action_logs WHERE business_id = \$1 ORDER BY created_at DESC LIMIT 10`).
		WithArgs("biz").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "approval_id", "action_type", "status", "payload", "performed_by", "created_at"}).
			AddRow("l1", "biz", &approvalID, "whatsapp_reply", "SUCCESS", []byte(`{"reply_text":"ok","intent":"complaint"}`), (*string)(nil), time.Now()))

	logs, err := repo.RecentActions(context.Background(), "biz", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ok", logs[0].Payload["reply_text"])
	require.NotNil(t, logs[0].ApprovalID)
	assert.Equal(t, "ap-1", *logs[0].ApprovalID)
	require.NoError(t, mock.ExpectationsWereMet())
}
