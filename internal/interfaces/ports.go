package interfaces

import (
	"context"

	"replygate/internal/entities"
)

// ChatMessage is one turn of a completion prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionProvider returns free text expected to contain one JSON object.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	Name() string
}

// Messenger delivers a reply on an outbound channel.
type Messenger interface {
	SendMessage(ctx context.Context, msg entities.OutboundMessage) (entities.DeliveryReceipt, error)
}

type BusinessStore interface {
	GetByID(ctx context.Context, id string) (*entities.Business, error)
}

type ConversationStore interface {
	FindOrCreate(ctx context.Context, businessID, contactID string) (*entities.Conversation, error)
	FindByContact(ctx context.Context, businessID, contactID string) (*entities.Conversation, error)
	SaveMessage(ctx context.Context, msg *entities.Message) error
	SaveIntent(ctx context.Context, intent *entities.Intent) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error)
}

type WorkflowRuleStore interface {
	FindRule(ctx context.Context, businessID, intentName string) (*entities.WorkflowRule, error)
	// EnsureRule inserts the rule unless one exists for the key; the
	// stored rule is returned with created=true only for the first writer.
	EnsureRule(ctx context.Context, rule *entities.WorkflowRule) (*entities.WorkflowRule, bool, error)
	UpsertRule(ctx context.Context, rule *entities.WorkflowRule) (*entities.WorkflowRule, error)
	ListRules(ctx context.Context, businessID string) ([]entities.WorkflowRule, error)
}

type ApprovalStore interface {
	Create(ctx context.Context, approval *entities.Approval) error
	GetByID(ctx context.Context, id string) (*entities.Approval, error)
	ListPending(ctx context.Context, businessID string) ([]entities.Approval, error)
	// Resolve moves a PENDING approval to a terminal status. It returns
	// ErrAlreadyResolved when the row is no longer PENDING.
	Resolve(ctx context.Context, id string, status entities.ApprovalStatus, reviewerID string) (*entities.Approval, error)
	// ClaimDispatch marks an APPROVED approval as handed to the sender.
	// Only the first caller gets true.
	ClaimDispatch(ctx context.Context, id string) (bool, error)
	ListApprovedUnexecuted(ctx context.Context, limit int) ([]string, error)
}

type ActionLogStore interface {
	Create(ctx context.Context, log *entities.ActionLog) error
	ExistsForApproval(ctx context.Context, approvalID string) (bool, error)
}

// BusinessAdminStore adds tenant management to BusinessStore.
type BusinessAdminStore interface {
	BusinessStore
	Create(ctx context.Context, b *entities.Business) error
	EnsureExists(ctx context.Context, b *entities.Business) (bool, error)
	UpdateProfile(ctx context.Context, id string, upd entities.BusinessProfileUpdate) (*entities.Business, error)
}

type UserStore interface {
	Create(ctx context.Context, user *entities.User) error
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	GetByID(ctx context.Context, id string) (*entities.User, error)
}

// DashboardStore serves tenant-scoped aggregates. A limit <= 0 means no limit.
type DashboardStore interface {
	CountMessages(ctx context.Context, businessID string) (int64, error)
	CountConversations(ctx context.Context, businessID string) (int64, error)
	CountPendingApprovals(ctx context.Context, businessID string) (int64, error)
	AverageConfidence(ctx context.Context, businessID string) (float64, error)
	RecentApprovals(ctx context.Context, businessID string, limit int) ([]entities.Approval, error)
	RecentActions(ctx context.Context, businessID string, limit int) ([]entities.ActionLog, error)
	SearchMessages(ctx context.Context, businessID, q string, limit int) ([]entities.SearchHit, error)
}
