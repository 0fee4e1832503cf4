package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nutrition-coach/internal/models"
	"nutrition-coach/internal/predictor"
	"nutrition-coach/pkg/logger"
)

type memStore struct {
	profiles map[uuid.UUID]*models.Profile
	deleted  []uuid.UUID
}

func (m *memStore) UpsertProfile(_ context.Context, p *models.Profile) error {
	if existing, ok := m.profiles[p.UserID]; ok {
		p.Streak = existing.Streak
		p.CheckinStreak = existing.CheckinStreak
	}
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, userID uuid.UUID) error {
	if _, ok := m.profiles[userID]; !ok {
		return models.ErrNotFound
	}
	delete(m.profiles, userID)
	m.deleted = append(m.deleted, userID)
	return nil
}

type stubPredictor struct {
	targets models.TargetSet
	err     error
	calls   int
}

func (s *stubPredictor) Predict(context.Context, models.ProfileAttributes) (models.TargetSet, error) {
	s.calls++
	return s.targets, s.err
}

var validAttrs = models.ProfileAttributes{
	Age: 35, Gender: "Other", Height: 172, Weight: 70,
	ActivityLevel: "Sedentary", Goal: models.GoalFatCut,
}

func TestRegister(t *testing.T) {
	store := &memStore{profiles: map[uuid.UUID]*models.Profile{}}
	pred := &stubPredictor{targets: models.TargetSet{Calories: 1900, Protein: 160, Carbs: 240, Fat: 32}}
	svc := NewService(store, pred, logger.Wrap(zaptest.NewLogger(t)))
	userID := uuid.New()

	profile, err := svc.Register(context.Background(), userID, validAttrs)
	require.NoError(t, err)

	assert.Equal(t, pred.targets, profile.Targets)
	assert.Equal(t, validAttrs, store.profiles[userID].ProfileAttributes)
	assert.True(t, store.profiles[userID].Complete())
}

func TestRegister_KeepsStreaksOnUpdate(t *testing.T) {
	userID := uuid.New()
	store := &memStore{profiles: map[uuid.UUID]*models.Profile{
		userID: {UserID: userID, Streak: 4, CheckinStreak: 9},
	}}
	svc := NewService(store, &stubPredictor{targets: models.TargetSet{Calories: 2000}}, logger.NewNop())

	profile, err := svc.Register(context.Background(), userID, validAttrs)
	require.NoError(t, err)

	assert.Equal(t, 4, profile.Streak)
	assert.Equal(t, 9, profile.CheckinStreak)
}

func TestRegister_InvalidAttributes(t *testing.T) {
	store := &memStore{profiles: map[uuid.UUID]*models.Profile{}}
	pred := &stubPredictor{}
	svc := NewService(store, pred, logger.NewNop())

	bad := validAttrs
	bad.Goal = "Keto"
	_, err := svc.Register(context.Background(), uuid.New(), bad)

	assert.ErrorIs(t, err, models.ErrInvalidProfile)
	assert.Zero(t, pred.calls)
	assert.Empty(t, store.profiles)
}

func TestRegister_PredictorFailureSavesNothing(t *testing.T) {
	store := &memStore{profiles: map[uuid.UUID]*models.Profile{}}
	pred := &stubPredictor{err: &predictor.UpstreamError{Provider: "ml", Err: predictor.ErrMissingCalories}}
	svc := NewService(store, pred, logger.Wrap(zaptest.NewLogger(t)))

	_, err := svc.Register(context.Background(), uuid.New(), validAttrs)

	var upstream *predictor.UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Empty(t, store.profiles)
}

func TestDelete(t *testing.T) {
	userID := uuid.New()
	store := &memStore{profiles: map[uuid.UUID]*models.Profile{userID: {UserID: userID}}}
	svc := NewService(store, &stubPredictor{}, logger.NewNop())

	require.NoError(t, svc.Delete(context.Background(), userID))
	assert.Equal(t, []uuid.UUID{userID}, store.deleted)

	err := svc.Delete(context.Background(), userID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
