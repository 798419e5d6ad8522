package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

type ActionLogRepository struct {
	db DB
}

func NewActionLogRepository(db DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

var _ interfaces.ActionLogStore = (*ActionLogRepository)(nil)

func (r *ActionLogRepository) Create(ctx context.Context, l *entities.ActionLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	payload, err := marshalJSON(l.Payload)
	if err != nil {
		return fmt.Errorf("action payload: %w", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO action_logs (id, business_id, approval_id, action_type, status, payload, performed_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		l.ID, l.BusinessID, l.ApprovalID, l.ActionType, string(l.Status), payload, l.PerformedBy).Scan(&l.CreatedAt)
	return mapError(err, "action log", l.ID)
}

func (r *ActionLogRepository) ExistsForApproval(ctx context.Context, approvalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM action_logs WHERE approval_id = $1)", approvalID).Scan(&exists)
	if err != nil {
		return false, mapError(err, "action log", approvalID)
	}
	return exists, nil
}
