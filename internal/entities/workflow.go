package entities

import "time"

// Intent vocabulary understood by the classifier.
const (
	IntentScheduleMeeting = "schedule_meeting"
	IntentGetPricing      = "get_pricing"
	IntentGeneralInquiry  = "general_inquiry"
	IntentComplaint       = "complaint"
	IntentHumanAgent      = "human_agent"
	IntentUnknown         = "unknown"
)

// IntentVocabulary is the closed label set offered to the AI provider.
var IntentVocabulary = []string{
	IntentScheduleMeeting,
	IntentGetPricing,
	IntentGeneralInquiry,
	IntentComplaint,
	IntentHumanAgent,
}

// AnalysisResult is what the classifier returns for one message.
type AnalysisResult struct {
	Intent         string         `json:"intent"`
	Confidence     float64        `json:"confidence"`
	SuggestedReply string         `json:"suggested_reply"`
	Entities       map[string]any `json:"entities"`
}

// WorkflowRule governs approval for one (BusinessID, IntentName).
type WorkflowRule struct {
	ID               string    `json:"id"`
	BusinessID       string    `json:"business_id"`
	IntentName       string    `json:"intent_name"`
	RequiresApproval bool      `json:"requires_approval"`
	MinConfidence    float64   `json:"min_confidence"`
	CreatedAt        time.Time `json:"created_at"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ProposedAction is the reply held for review.
type ProposedAction struct {
	ReplyText    string `json:"reply_text"`
	OriginalText string `json:"original_text"`
	Recipient    string `json:"recipient_number"`
	Channel      string `json:"channel,omitempty"`
}

// Approval is a pending or resolved human decision. Never deleted.
type Approval struct {
	ID             string         `json:"id"`
	WorkflowRuleID string         `json:"workflow_rule_id"`
	MessageID      string         `json:"message_id,omitempty"`
	ProposedAction ProposedAction `json:"proposed_action"`
	Status         ApprovalStatus `json:"status"`
	ReviewedBy     *string        `json:"reviewed_by"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// Loaded with the approval; BusinessID is the tenant of the rule.
	BusinessID string `json:"business_id"`
	IntentName string `json:"intent_name"`
}

type ActionStatus string

const (
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
)

// Action types
const (
	ActionWhatsAppReply = "whatsapp_reply"
	ActionTelegramReply = "telegram_reply"
	ActionWebReply      = "web_reply"
)

// ActionLog records one execution attempt. Append-only.
type ActionLog struct {
	ID          string         `json:"id"`
	BusinessID  string         `json:"business_id"`
	ApprovalID  *string        `json:"approval_id,omitempty"`
	ActionType  string         `json:"action_type"`
	Status      ActionStatus   `json:"status"`
	Payload     map[string]any `json:"payload"`
	PerformedBy *string        `json:"performed_by"`
	CreatedAt   time.Time      `json:"created_at"`
}
