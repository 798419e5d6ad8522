package repository

import (
	"context"

	"github.com/google/uuid"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

type WorkflowRuleRepository struct {
	db DB
}

func NewWorkflowRuleRepository(db DB) *WorkflowRuleRepository {
	return &WorkflowRuleRepository{db: db}
}

var _ interfaces.WorkflowRuleStore = (*WorkflowRuleRepository)(nil)

const ruleColumns = "id, business_id, intent_name, requires_approval, min_confidence, created_at"

func scanRule(row interface{ Scan(...any) error }, extra ...any) (*entities.WorkflowRule, error) {
	var rule entities.WorkflowRule
	dest := append([]any{&rule.ID, &rule.BusinessID, &rule.IntentName, &rule.RequiresApproval, &rule.MinConfidence, &rule.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindRule returns ErrNotFound when the tenant has no rule for the intent.
func (r *WorkflowRuleRepository) FindRule(ctx context.Context, businessID, intentName string) (*entities.WorkflowRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx,
		"SELECT "+ruleColumns+" FROM workflow_rules WHERE business_id = $1 AND intent_name = $2",
		businessID, intentName))
	if err != nil {
		return nil, mapError(err, "workflow rule", businessID+"/"+intentName)
	}
	return rule, nil
}

// EnsureRule is first-write-wins: an existing rule is returned untouched.
func (r *WorkflowRuleRepository) EnsureRule(ctx context.Context, rule *entities.WorkflowRule) (*entities.WorkflowRule, bool, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	var inserted bool
	stored, err := scanRule(r.db.QueryRow(ctx,
		`INSERT INTO workflow_rules (id, business_id, intent_name, requires_approval, min_confidence)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (business_id, intent_name) DO UPDATE SET intent_name = EXCLUDED.intent_name
		 RETURNING `+ruleColumns+`, (xmax = 0) AS inserted`,
		rule.ID, rule.BusinessID, rule.IntentName, rule.RequiresApproval, rule.MinConfidence), &inserted)
	if err != nil {
		return nil, false, mapError(err, "workflow rule", rule.BusinessID+"/"+rule.IntentName)
	}
	return stored, inserted, nil
}

// UpsertRule overwrites the approval settings of an existing rule.
func (r *WorkflowRuleRepository) UpsertRule(ctx context.Context, rule *entities.WorkflowRule) (*entities.WorkflowRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	stored, err := scanRule(r.db.QueryRow(ctx,
		`INSERT INTO workflow_rules (id, business_id, intent_name, requires_approval, min_confidence)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (business_id, intent_name) DO UPDATE
		 SET requires_approval = EXCLUDED.requires_approval, min_confidence = EXCLUDED.min_confidence
		 RETURNING `+ruleColumns,
		rule.ID, rule.BusinessID, rule.IntentName, rule.RequiresApproval, rule.MinConfidence))
	if err != nil {
		return nil, mapError(err, "workflow rule", rule.BusinessID+"/"+rule.IntentName)
	}
	return stored, nil
}

func (r *WorkflowRuleRepository) ListRules(ctx context.Context, businessID string) ([]entities.WorkflowRule, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+ruleColumns+" FROM workflow_rules WHERE business_id = $1 ORDER BY intent_name",
		businessID)
	if err != nil {
		return nil, mapError(err, "workflow rules", businessID)
	}
	defer rows.Close()

	var out []entities.WorkflowRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}
