package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nutrition-coach/config"
	"nutrition-coach/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is everything the services persist. PostgresDB and SQLiteDB both
// implement it.
type Store interface {
	Migrate(ctx context.Context) error
	Close()

	UpsertProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	InsertFeedback(ctx context.Context, entry *models.FeedbackEntry, next func(last *time.Time, current int) int) (int, error)
	RecentFeedback(ctx context.Context, userID uuid.UUID, limit int) ([]models.FeedbackEntry, error)

	QueryFoods(ctx context.Context, q models.FoodQuery) ([]models.FoodItem, error)
	ReplaceFoods(ctx context.Context, items []models.FoodItem) (int64, error)

	UpsertPlan(ctx context.Context, plan *models.Plan) error
	ListPlans(ctx context.Context, userID uuid.UUID) ([]models.Plan, error)
	GetPlan(ctx context.Context, userID uuid.UUID, planID int64) (*models.Plan, error)
	GetPlanByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.Plan, error)
	UpdateMealCompletion(ctx context.Context, userID uuid.UUID, planID int64, apply func(models.CompletedMeals) (models.CompletedMeals, int)) (*models.Plan, int, error)

	AddSubscription(ctx context.Context, sub *models.Subscription) error
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
	DeleteSubscriptionByTarget(ctx context.Context, channel models.Channel, target string) error
	SubscriberOf(ctx context.Context, channel models.Channel, target string) (uuid.UUID, error)
}

var (
	_ Store = (*PostgresDB)(nil)
	_ Store = (*SQLiteDB)(nil)
)

// Open connects to the database selected by cfg.Driver.
func Open(cfg config.DBConfig) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		pg, err := NewPostgresDB(cfg)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case DriverSQLite:
		lite, err := NewSQLiteDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
