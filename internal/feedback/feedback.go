// internal/feedback/feedback.go
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nutrition-coach/internal/adaptation"
	"nutrition-coach/internal/models"
	"nutrition-coach/internal/streak"
	"nutrition-coach/pkg/logger"
)

const SubmittedMessage = "Feedback submitted successfully!"

type Store interface {
	// InsertFeedback stores entry and sets the check-in streak to
	// next(lastDay, currentStreak) in one transaction. A second entry for
	// the same user and day fails with models.ErrDuplicateFeedback.
	InsertFeedback(ctx context.Context, entry *models.FeedbackEntry, next func(last *time.Time, current int) int) (int, error)
	RecentFeedback(ctx context.Context, userID uuid.UUID, limit int) ([]models.FeedbackEntry, error)
}

type Result struct {
	Entry         *models.FeedbackEntry
	CheckinStreak int
}

type Service struct {
	store  Store
	logger *logger.Logger
	window int
	now    func() time.Time
}

func NewService(store Store, feedbackWindow int, l *logger.Logger) *Service {
	if feedbackWindow <= 0 {
		feedbackWindow = 7
	}
	return &Service{
		store:  store,
		logger: l,
		window: feedbackWindow,
		now:    time.Now,
	}
}

// Submit records today's feedback and advances the check-in streak.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, scores models.Scores) (*Result, error) {
	if err := scores.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	entry := &models.FeedbackEntry{
		UserID: userID,
		Scores: scores,
		Day:    models.Day(now),
	}

	checkin, err := s.store.InsertFeedback(ctx, entry, func(last *time.Time, current int) int {
		return streak.NextCheckin(last, current, now)
	})
	switch {
	case errors.Is(err, models.ErrDuplicateFeedback):
		s.logger.Warnw("Feedback already submitted today",
			"user_id", userID, "date", entry.Day.Format(models.DateLayout))
		return nil, err
	case err != nil:
		s.logger.Errorw("Failed to save feedback",
			"user_id", userID, "date", entry.Day.Format(models.DateLayout), "error", err)
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	s.logger.Infow("Saved feedback",
		"user_id", userID,
		"date", entry.Day.Format(models.DateLayout),
		"checkin_streak", checkin)
	return &Result{Entry: entry, CheckinStreak: checkin}, nil
}

// Adjustments previews the nudge the next generated plan would receive.
func (s *Service) Adjustments(ctx context.Context, userID uuid.UUID) (models.AdjustmentResult, error) {
	history, err := s.store.RecentFeedback(ctx, userID, s.window)
	if err != nil {
		return models.AdjustmentResult{}, fmt.Errorf("failed to load feedback history: %w", err)
	}
	return adaptation.CalculateAdjustments(adaptation.ScoresOf(history)), nil
}
