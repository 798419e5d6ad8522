package repository

import (
	"context"

	"replygate/internal/entities"
)

type BusinessRepository struct {
	db DB
}

func NewBusinessRepository(db DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

const businessColumns = "id, name, knowledge_base, ai_instructions, timezone, created_at"

func scanBusiness(row interface{ Scan(...any) error }) (*entities.Business, error) {
	var b entities.Business
	if err := row.Scan(&b.ID, &b.Name, &b.KnowledgeBase, &b.AIInstructions, &b.Timezone, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BusinessRepository) GetByID(ctx context.Context, id string) (*entities.Business, error) {
	b, err := scanBusiness(r.db.QueryRow(ctx,
		"SELECT "+businessColumns+" FROM businesses WHERE id = $1", id))
	if err != nil {
		return nil, mapError(err, "business", id)
	}
	return b, nil
}

func (r *BusinessRepository) Create(ctx context.Context, b *entities.Business) error {
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO businesses (id, name, knowledge_base, ai_instructions, timezone)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		b.ID, b.Name, b.KnowledgeBase, b.AIInstructions, b.Timezone).Scan(&b.CreatedAt)
	return mapError(err, "business", b.ID)
}

// EnsureExists inserts b unless a business with the same id exists.
// It reports whether a row was inserted.
func (r *BusinessRepository) EnsureExists(ctx context.Context, b *entities.Business) (bool, error) {
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	tag, err := r.db.Exec(ctx,
		`INSERT INTO businesses (id, name, knowledge_base, ai_instructions, timezone)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		b.ID, b.Name, b.KnowledgeBase, b.AIInstructions, b.Timezone)
	if err != nil {
		return false, mapError(err, "business", b.ID)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateProfile applies the non-nil fields of upd and returns the stored row.
func (r *BusinessRepository) UpdateProfile(ctx context.Context, id string, upd entities.BusinessProfileUpdate) (*entities.Business, error) {
	set := map[string]any{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.KnowledgeBase != nil {
		set["knowledge_base"] = *upd.KnowledgeBase
	}
	if upd.AIInstructions != nil {
		set["ai_instructions"] = *upd.AIInstructions
	}
	if upd.Timezone != nil {
		set["timezone"] = *upd.Timezone
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	query, args, err := psql.Update("businesses").
		SetMap(set).
		Where("id = ?", id).
		Suffix("RETURNING " + businessColumns).
		ToSql()
	if err != nil {
		return nil, err
	}
	b, err := scanBusiness(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError(err, "business", id)
	}
	return b, nil
}
