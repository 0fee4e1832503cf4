// Package onboarding registers user profiles with their predicted baseline
// targets and removes accounts.
package onboarding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"nutrition-coach/internal/models"
	"nutrition-coach/internal/predictor"
	"nutrition-coach/pkg/logger"
)

type Store interface {
	// UpsertProfile stores attributes and targets, keeping existing streaks.
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	// DeleteUser removes the profile with its plans, feedback and
	// subscriptions.
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	store     Store
	predictor predictor.Predictor
	logger    *logger.Logger
}

func NewService(store Store, p predictor.Predictor, l *logger.Logger) *Service {
	return &Service{store: store, predictor: p, logger: l}
}

// Register validates attrs, asks the predictor for baseline targets and
// saves the profile. Nothing is saved when prediction fails.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, attrs models.ProfileAttributes) (*models.Profile, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	s.logger.Infow("Fetching initial targets", "user_id", userID, "goal", attrs.Goal)
	targets, err := s.predictor.Predict(ctx, attrs)
	if err != nil {
		s.logger.Errorw("Could not calculate nutritional targets", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to predict targets: %w", err)
	}

	profile := &models.Profile{
		UserID:            userID,
		ProfileAttributes: attrs,
		Targets:           targets,
	}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		s.logger.Errorw("Failed to save profile", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.Infow("Registered profile", "user_id", userID, "calories", targets.Calories)
	return profile, nil
}

func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	s.logger.Infow("Deleting user", "user_id", userID)
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		s.logger.Errorw("Failed to delete user", "user_id", userID, "error", err)
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
