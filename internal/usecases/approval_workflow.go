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

// ApprovalWorkflow owns workflow rules and the approval state machine
// PENDING -> APPROVED | REJECTED.
type ApprovalWorkflow struct {
	rules     interfaces.WorkflowRuleStore
	approvals interfaces.ApprovalStore
	log       zerolog.Logger
}

func NewApprovalWorkflow(rules interfaces.WorkflowRuleStore, approvals interfaces.ApprovalStore, log zerolog.Logger) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		rules:     rules,
		approvals: approvals,
		log:       log.With().Str("component", "approvals").Logger(),
	}
}

// EnsureRule returns the tenant's rule for intent, creating a conservative
// one (approval required, min confidence 0.8) on first use.
func (w *ApprovalWorkflow) EnsureRule(ctx context.Context, businessID, intent string) (*entities.WorkflowRule, bool, error) {
	rule, created, err := w.rules.EnsureRule(ctx, &entities.WorkflowRule{
		BusinessID:       businessID,
		IntentName:       intent,
		RequiresApproval: true,
		MinConfidence:    DefaultMinConfidence,
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure rule %s/%s: %w", businessID, intent, err)
	}
	if created {
		w.log.Info().Str("business_id", businessID).Str("intent", intent).Msg("workflow rule created")
	}
	return rule, created, nil
}

// CreateApprovalRequest ensures the rule and opens a pending approval on it.
func (w *ApprovalWorkflow) CreateApprovalRequest(ctx context.Context, businessID, messageID, intent string, action entities.ProposedAction) (*entities.Approval, error) {
	rule, _, err := w.EnsureRule(ctx, businessID, intent)
	if err != nil {
		return nil, err
	}
	return w.CreateApprovalForRule(ctx, rule, messageID, action)
}

func (w *ApprovalWorkflow) CreateApprovalForRule(ctx context.Context, rule *entities.WorkflowRule, messageID string, action entities.ProposedAction) (*entities.Approval, error) {
	a := &entities.Approval{
		WorkflowRuleID: rule.ID,
		MessageID:      messageID,
		ProposedAction: action,
		Status:         entities.ApprovalPending,
		BusinessID:     rule.BusinessID,
		IntentName:     rule.IntentName,
	}
	if err := w.approvals.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	metrics.ApprovalsCreated.Inc()
	w.log.Info().Str("approval_id", a.ID).Str("business_id", rule.BusinessID).Str("intent", rule.IntentName).Msg("approval pending")
	return a, nil
}

func (w *ApprovalWorkflow) GetPendingApprovals(ctx context.Context, businessID string) ([]entities.Approval, error) {
	return w.approvals.ListPending(ctx, businessID)
}

// GetApproval fails with ErrForbidden when the approval belongs to another tenant.
func (w *ApprovalWorkflow) GetApproval(ctx context.Context, id, businessID string) (*entities.Approval, error) {
	a, err := w.approvals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.BusinessID != businessID {
		return nil, fmt.Errorf("approval %s: %w", id, entities.ErrForbidden)
	}
	return a, nil
}

// UpdateApprovalStatus resolves a pending approval. A second disposition
// fails with ErrAlreadyResolved.
func (w *ApprovalWorkflow) UpdateApprovalStatus(ctx context.Context, id string, status entities.ApprovalStatus, reviewerID, businessID string) (*entities.Approval, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("status %q: %w", status, entities.ErrInvalidStatus)
	}

	current, err := w.GetApproval(ctx, id, businessID)
	if err != nil {
		return nil, err
	}
	if current.Status != entities.ApprovalPending {
		return nil, fmt.Errorf("approval %s is %s: %w", id, current.Status, entities.ErrAlreadyResolved)
	}

	updated, err := w.approvals.Resolve(ctx, id, status, reviewerID)
	if err != nil {
		return nil, err
	}
	metrics.ApprovalsResolved.WithLabelValues(string(status)).Inc()
	w.log.Info().Str("approval_id", id).Str("status", string(status)).Str("reviewer", reviewerID).Msg("approval resolved")
	return updated, nil
}

func (w *ApprovalWorkflow) ListRules(ctx context.Context, businessID string) ([]entities.WorkflowRule, error) {
	return w.rules.ListRules(ctx, businessID)
}

// UpsertRule replaces the tenant's settings for intent.
func (w *ApprovalWorkflow) UpsertRule(ctx context.Context, businessID, intent string, requiresApproval bool, minConfidence float64) (*entities.WorkflowRule, error) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return nil, fmt.Errorf("intent name: %w", entities.ErrValidation)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("min confidence %v out of [0,1]: %w", minConfidence, entities.ErrValidation)
	}
	return w.rules.UpsertRule(ctx, &entities.WorkflowRule{
		BusinessID:       businessID,
		IntentName:       intent,
		RequiresApproval: requiresApproval,
		MinConfidence:    minConfidence,
	})
}

// ParseApprovalStatus accepts the status names case-insensitively.
func ParseApprovalStatus(s string) (entities.ApprovalStatus, error) {
	st := entities.ApprovalStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsTerminal() {
		return "", fmt.Errorf("status %q: %w", s, entities.ErrInvalidStatus)
	}
	return st, nil
}
