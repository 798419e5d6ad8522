package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

type ApprovalRepository struct {
	db DB
}

func NewApprovalRepository(db DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

var _ interfaces.ApprovalStore = (*ApprovalRepository)(nil)

// Approvals are always read with the owning rule so the tenant is known.
const approvalSelect = `SELECT a.id, a.workflow_rule_id, a.message_id, a.proposed_action, a.status,
	a.reviewed_by, a.reviewed_at, a.created_at, r.business_id, r.intent_name
	FROM approvals a JOIN workflow_rules r ON r.id = a.workflow_rule_id`

func scanApproval(row interface{ Scan(...any) error }) (*entities.Approval, error) {
	var (
		a         entities.Approval
		messageID *string
		action    []byte
		status    string
	)
	err := row.Scan(&a.ID, &a.WorkflowRuleID, &messageID, &action, &status,
		&a.ReviewedBy, &a.ReviewedAt, &a.CreatedAt, &a.BusinessID, &a.IntentName)
	if err != nil {
		return nil, err
	}
	a.MessageID = derefString(messageID)
	a.Status = entities.ApprovalStatus(status)
	if len(action) > 0 {
		if err := json.Unmarshal(action, &a.ProposedAction); err != nil {
			return nil, fmt.Errorf("approval %s proposed action: %w", a.ID, err)
		}
	}
	return &a, nil
}

func (r *ApprovalRepository) Create(ctx context.Context, a *entities.Approval) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = entities.ApprovalPending
	}
	action, err := json.Marshal(a.ProposedAction)
	if err != nil {
		return fmt.Errorf("proposed action: %w", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO approvals (id, workflow_rule_id, message_id, proposed_action, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		a.ID, a.WorkflowRuleID, nullIfEmpty(a.MessageID), action, string(a.Status)).Scan(&a.CreatedAt)
	return mapError(err, "approval", a.ID)
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*entities.Approval, error) {
	a, err := scanApproval(r.db.QueryRow(ctx, approvalSelect+" WHERE a.id = $1", id))
	if err != nil {
		return nil, mapError(err, "approval", id)
	}
	return a, nil
}

func (r *ApprovalRepository) ListPending(ctx context.Context, businessID string) ([]entities.Approval, error) {
	rows, err := r.db.Query(ctx,
		approvalSelect+" WHERE r.business_id = $1 AND a.status = 'PENDING' ORDER BY a.created_at DESC",
		businessID)
	if err != nil {
		return nil, mapError(err, "approvals", businessID)
	}
	defer rows.Close()

	out := []entities.Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Resolve only moves rows that are still PENDING, so two concurrent
// reviewers cannot both win.
func (r *ApprovalRepository) Resolve(ctx context.Context, id string, status entities.ApprovalStatus, reviewerID string) (*entities.Approval, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE approvals SET status = $2, reviewed_by = $3, reviewed_at = now()
		 WHERE id = $1 AND status = 'PENDING'`,
		id, string(status), reviewerID)
	if err != nil {
		return nil, mapError(err, "approval", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("approval %s: %w", id, entities.ErrAlreadyResolved)
	}
	return r.GetByID(ctx, id)
}

func (r *ApprovalRepository) ClaimDispatch(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE approvals SET dispatched_at = now()
		 WHERE id = $1 AND status = 'APPROVED' AND dispatched_at IS NULL`, id)
	if err != nil {
		return false, mapError(err, "approval", id)
	}
	return tag.RowsAffected() == 1, nil
}

// ListApprovedUnexecuted returns approved ids that were never handed to the
// sender and that no action log references yet.
func (r *ApprovalRepository) ListApprovedUnexecuted(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id FROM approvals a
		 WHERE a.status = 'APPROVED'
		   AND a.dispatched_at IS NULL
		   AND NOT EXISTS (SELECT 1 FROM action_logs l WHERE l.approval_id = a.id)
		 ORDER BY a.reviewed_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, mapError(err, "approvals", "approved")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
