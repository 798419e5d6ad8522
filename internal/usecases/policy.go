package usecases

import (
	"context"
	"errors"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
	"replygate/internal/metrics"
)

const (
	// DefaultMinConfidence applies to intents without a rule and to new rules.
	DefaultMinConfidence = 0.8
	autoSafeThreshold    = 0.6
)

var (
	autoSafeIntents = map[string]bool{
		entities.IntentGeneralInquiry: true,
		entities.IntentGetPricing:     true,
	}
	riskyIntents = map[string]bool{
		entities.IntentComplaint:  true,
		entities.IntentHumanAgent: true,
	}
)

// PolicyEngine decides whether a classified message needs human review.
// It never writes.
type PolicyEngine struct {
	rules interfaces.WorkflowRuleStore
}

func NewPolicyEngine(rules interfaces.WorkflowRuleStore) *PolicyEngine {
	return &PolicyEngine{rules: rules}
}

func (p *PolicyEngine) RequiresApproval(ctx context.Context, businessID, intent string, confidence float64) (bool, error) {
	rule, err := p.rules.FindRule(ctx, businessID, intent)
	switch {
	case err == nil:
		return p.record(intent, rule.RequiresApproval || confidence < rule.MinConfidence), nil
	case errors.Is(err, entities.ErrNotFound):
		return p.record(intent, DefaultRequiresApproval(intent, confidence)), nil
	default:
		return false, err
	}
}

func (p *PolicyEngine) record(intent string, approval bool) bool {
	decision := "auto"
	if approval {
		decision = "approval"
	}
	if !autoSafeIntents[intent] && !riskyIntents[intent] && intent != entities.IntentScheduleMeeting {
		intent = "other"
	}
	metrics.PolicyDecisions.WithLabelValues(intent, decision).Inc()
	return approval
}

// DefaultRequiresApproval is the decision for a tenant without a rule.
func DefaultRequiresApproval(intent string, confidence float64) bool {
	if autoSafeIntents[intent] && confidence > autoSafeThreshold {
		return false
	}
	if confidence < DefaultMinConfidence {
		return true
	}
	return riskyIntents[intent]
}
