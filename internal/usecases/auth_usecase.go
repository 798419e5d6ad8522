package usecases

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

const minPasswordLength = 6

type SignupInput struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	BusinessName string `json:"business_name"`
}

type AuthUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	BusinessID   string `json:"business_id"`
	BusinessName string `json:"business_name"`
}

type AuthResult struct {
	AccessToken string   `json:"access_token"`
	User        AuthUser `json:"user"`
}

type AuthUsecase struct {
	users      interfaces.UserStore
	businesses interfaces.BusinessAdminStore
	jwtSecret  []byte
	tokenTTL   time.Duration
}

func NewAuthUsecase(users interfaces.UserStore, businesses interfaces.BusinessAdminStore, secret string, ttl time.Duration) *AuthUsecase {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthUsecase{
		users:      users,
		businesses: businesses,
		jwtSecret:  []byte(secret),
		tokenTTL:   ttl,
	}
}

// Signup creates a business and its first admin.
func (uc *AuthUsecase) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("email: %w", entities.ErrValidation)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, entities.ErrValidation)
	}
	if strings.TrimSpace(in.BusinessName) == "" {
		return nil, fmt.Errorf("business name: %w", entities.ErrValidation)
	}

	_, err := uc.users.GetByEmail(ctx, in.Email)
	if err == nil {
		return nil, fmt.Errorf("email already registered: %w", entities.ErrAlreadyExists)
	}
	if !errors.Is(err, entities.ErrNotFound) {
		return nil, err
	}

	business := &entities.Business{ID: uuid.NewString(), Name: strings.TrimSpace(in.BusinessName)}
	if err := uc.businesses.Create(ctx, business); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &entities.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: string(hashed),
		Name:         in.Name,
		Role:         "admin",
		BusinessID:   business.ID,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return uc.issue(user, business)
}

func (uc *AuthUsecase) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := uc.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, entities.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", entities.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", entities.ErrUnauthorized)
	}

	business, err := uc.businesses.GetByID(ctx, user.BusinessID)
	if err != nil {
		return nil, err
	}
	return uc.issue(user, business)
}

func (uc *AuthUsecase) issue(user *entities.User, business *entities.Business) (*AuthResult, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":           user.ID,
		"user_id":       user.ID,
		"email":         user.Email,
		"business_id":   user.BusinessID,
		"business_name": business.Name,
		"iat":           now.Unix(),
		"exp":           now.Add(uc.tokenTTL).Unix(),
	})

	signed, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &AuthResult{
		AccessToken: signed,
		User: AuthUser{
			ID:           user.ID,
			Email:        user.Email,
			Name:         user.Name,
			BusinessID:   user.BusinessID,
			BusinessName: business.Name,
		},
	}, nil
}

// ParseToken validates a bearer token and returns the caller identity.
func (uc *AuthUsecase) ParseToken(tokenString string) (entities.Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return uc.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return entities.Identity{}, fmt.Errorf("%v: %w", err, entities.ErrUnauthorized)
	}

	userID, _ := claims["user_id"].(string)
	businessID, _ := claims["business_id"].(string)
	email, _ := claims["email"].(string)
	if userID == "" || businessID == "" {
		return entities.Identity{}, fmt.Errorf("token missing identity claims: %w", entities.ErrUnauthorized)
	}
	return entities.Identity{UserID: userID, BusinessID: businessID, Email: email}, nil
}

// EnsureUser creates the user if the email is not registered yet (startup seeding).
func (uc *AuthUsecase) EnsureUser(ctx context.Context, email, password, name, role, businessID string) (bool, error) {
	_, err := uc.users.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, entities.ErrNotFound) {
		return false, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	err = uc.users.Create(ctx, &entities.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hashed),
		Name:         name,
		Role:         role,
		BusinessID:   businessID,
	})
	if errors.Is(err, entities.ErrAlreadyExists) {
		return false, nil
	}
	return err == nil, err
}
