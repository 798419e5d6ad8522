package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"replygate/internal/entities"
)

// DashboardRepository serves the read-only aggregates behind the dashboard.
type DashboardRepository struct {
	db DB
}

func NewDashboardRepository(db DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) count(ctx context.Context, b sq.SelectBuilder, what, businessID string) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapError(err, what, businessID)
	}
	return n, nil
}

func (r *DashboardRepository) CountMessages(ctx context.Context, businessID string) (int64, error) {
	return r.count(ctx, psql.Select("COUNT(*)").
		From("messages m").
		Join("conversations c ON c.id = m.conversation_id").
		Where(sq.Eq{"c.business_id": businessID}), "messages", businessID)
}

func (r *DashboardRepository) CountConversations(ctx context.Context, businessID string) (int64, error) {
	return r.count(ctx, psql.Select("COUNT(*)").
		From("conversations").
		Where(sq.Eq{"business_id": businessID}), "conversations", businessID)
}

func (r *DashboardRepository) CountPendingApprovals(ctx context.Context, businessID string) (int64, error) {
	return r.count(ctx, psql.Select("COUNT(*)").
		From("approvals a").
		Join("workflow_rules r ON r.id = a.workflow_rule_id").
		Where(sq.Eq{"r.business_id": businessID, "a.status": string(entities.ApprovalPending)}), "approvals", businessID)
}

// AverageConfidence is 0 when the tenant has no classified messages.
func (r *DashboardRepository) AverageConfidence(ctx context.Context, businessID string) (float64, error) {
	query, args, err := psql.Select("COALESCE(AVG(i.confidence), 0)").
		From("intents i").
		Join("messages m ON m.id = i.message_id").
		Join("conversations c ON c.id = m.conversation_id").
		Where(sq.Eq{"c.business_id": businessID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var avg float64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&avg); err != nil {
		return 0, mapError(err, "intents", businessID)
	}
	return avg, nil
}

// RecentApprovals lists every approval of the tenant, newest first.
// limit <= 0 means no limit.
func (r *DashboardRepository) RecentApprovals(ctx context.Context, businessID string, limit int) ([]entities.Approval, error) {
	b := psql.Select("a.id", "a.workflow_rule_id", "a.message_id", "a.proposed_action", "a.status",
		"a.reviewed_by", "a.reviewed_at", "a.created_at", "r.business_id", "r.intent_name").
		From("approvals a").
		Join("workflow_rules r ON r.id = a.workflow_rule_id").
		Where(sq.Eq{"r.business_id": businessID}).
		OrderBy("a.created_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "approvals", businessID)
	}
	defer rows.Close()

	var out []entities.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// RecentActions lists action logs of the tenant, newest first.
// limit <= 0 means no limit.
func (r *DashboardRepository) RecentActions(ctx context.Context, businessID string, limit int) ([]entities.ActionLog, error) {
	b := psql.Select("id", "business_id", "approval_id", "action_type", "status", "payload", "performed_by", "created_at").
		From("action_logs").
		Where(sq.Eq{"business_id": businessID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "action logs", businessID)
	}
	defer rows.Close()

	var out []entities.ActionLog
	for rows.Next() {
		var (
			l       entities.ActionLog
			status  string
			payload []byte
		)
		if err := rows.Scan(&l.ID, &l.BusinessID, &l.ApprovalID, &l.ActionType, &status, &payload, &l.PerformedBy, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Status = entities.ActionStatus(status)
		l.Payload = unmarshalJSON(payload)
		out = append(out, l)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchMessages does a case-insensitive substring match over message content.
func (r *DashboardRepository) SearchMessages(ctx context.Context, businessID, q string, limit int) ([]entities.SearchHit, error) {
	query, args, err := psql.Select("m.id", "m.conversation_id", "c.contact_id", "m.role", "m.content", "m.created_at").
		From("messages m").
		Join("conversations c ON c.id = m.conversation_id").
		Where(sq.Eq{"c.business_id": businessID}).
		Where(sq.ILike{"m.content": "%" + likeEscaper.Replace(q) + "%"}).
		OrderBy("m.created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "messages", businessID)
	}
	defer rows.Close()

	out := []entities.SearchHit{}
	for rows.Next() {
		var h entities.SearchHit
		if err := rows.Scan(&h.MessageID, &h.ConversationID, &h.ContactID, &h.Role, &h.Content, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
