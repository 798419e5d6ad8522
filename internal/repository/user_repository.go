package repository

import (
	"context"

	"replygate/internal/entities"
)

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, email, password_hash, name, role, business_id, created_at"

func scanUser(row interface{ Scan(...any) error }) (*entities.User, error) {
	var u entities.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.BusinessID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, name, role, business_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Role, user.BusinessID).Scan(&user.CreatedAt)
	return mapError(err, "user", user.Email)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if err != nil {
		return nil, mapError(err, "user", email)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, mapError(err, "user", id)
	}
	return u, nil
}
