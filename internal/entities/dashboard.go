package entities

import "time"

type DashboardStats struct {
	TotalInteractions int64   `json:"total_interactions"`
	ActiveSessions    int64   `json:"active_sessions"`
	PendingApprovals  int64   `json:"pending_approvals"`
	SystemHealth      float64 `json:"system_health"`
}

// EngagementItem is one row of the merged approval / auto-reply feed.
type EngagementItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	Intent    string    `json:"intent"`
	CreatedAt time.Time `json:"created_at"`
}

type SearchHit struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	ContactID      string    `json:"contact_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
