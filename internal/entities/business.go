package entities

import "time"

// Business is the tenant. Every other entity is scoped by its ID.
type Business struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	KnowledgeBase  string    `json:"knowledge_base"`
	AIInstructions string    `json:"ai_instructions"`
	Timezone       string    `json:"timezone"`
	CreatedAt      time.Time `json:"created_at"`
}

// BusinessProfileUpdate holds optional profile fields; nil means unchanged.
type BusinessProfileUpdate struct {
	Name           *string `json:"name"`
	KnowledgeBase  *string `json:"knowledge_base"`
	AIInstructions *string `json:"ai_instructions"`
	Timezone       *string `json:"timezone"`
}
