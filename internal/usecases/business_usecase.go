package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

type BusinessUsecase struct {
	businesses interfaces.BusinessAdminStore
	log        zerolog.Logger
}

func NewBusinessUsecase(businesses interfaces.BusinessAdminStore, log zerolog.Logger) *BusinessUsecase {
	return &BusinessUsecase{businesses: businesses, log: log}
}

func (u *BusinessUsecase) GetProfile(ctx context.Context, businessID string) (*entities.Business, error) {
	return u.businesses.GetByID(ctx, businessID)
}

func (u *BusinessUsecase) UpdateProfile(ctx context.Context, businessID string, upd entities.BusinessProfileUpdate) (*entities.Business, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("business name: %w", entities.ErrValidation)
		}
		upd.Name = &name
	}
	if upd.Timezone != nil {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil {
			return nil, fmt.Errorf("timezone %q: %w", *upd.Timezone, entities.ErrValidation)
		}
	}
	return u.businesses.UpdateProfile(ctx, businessID, upd)
}

// SeedDevBusiness makes sure the development tenant exists.
func (u *BusinessUsecase) SeedDevBusiness(ctx context.Context, businessID string) error {
	created, err := u.businesses.EnsureExists(ctx, &entities.Business{
		ID:       businessID,
		Name:     "Dev Real Estate",
		Timezone: "Asia/Karachi",
	})
	if err != nil {
		return err
	}
	if created {
		u.log.Info().Str("business_id", businessID).Msg("development business seeded")
	}
	return nil
}
