package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"nutrition-coach/internal/models"
)

const planColumns = `id, user_id, plan_date, plan_data, completed_meals, created_at, updated_at`

func scanPGPlan(row pgx.Row) (*models.Plan, error) {
	var (
		p               models.Plan
		userID          string
		data, completed []byte
	)
	if err := row.Scan(&p.ID, &userID, &p.PlanDate, &data, &completed, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PlanDate = dateUTC(p.PlanDate)
	if err := decodePlan(&p, userID, data, completed); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPlan replaces the plan of (user, plan date). completed_meals of an
// existing row is kept.
func (db *PostgresDB) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	data, err := encodePlanData(plan.Data)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO daily_plans (user_id, plan_date, plan_data)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, plan_date) DO UPDATE
        SET plan_data = EXCLUDED.plan_data, updated_at = NOW()
        RETURNING ` + planColumns

	saved, err := scanPGPlan(db.pool.QueryRow(ctx, query, plan.UserID.String(), dateUTC(plan.PlanDate), data))
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", notFound(err))
	}
	*plan = *saved
	return nil
}

func (db *PostgresDB) ListPlans(ctx context.Context, userID uuid.UUID) ([]models.Plan, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE user_id = $1 ORDER BY plan_date DESC`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	plans := []models.Plan{}
	for rows.Next() {
		p, err := scanPGPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (db *PostgresDB) GetPlan(ctx context.Context, userID uuid.UUID, planID int64) (*models.Plan, error) {
	p, err := scanPGPlan(db.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE id = $1 AND user_id = $2`,
		planID, userID.String()))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (db *PostgresDB) GetPlanByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.Plan, error) {
	p, err := scanPGPlan(db.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE user_id = $1 AND plan_date = $2`,
		userID.String(), dateUTC(date)))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// UpdateMealCompletion applies a completion change and the resulting streak
// delta in one transaction, holding the plan row lock throughout.
func (db *PostgresDB) UpdateMealCompletion(ctx context.Context, userID uuid.UUID, planID int64, apply func(models.CompletedMeals) (models.CompletedMeals, int)) (*models.Plan, int, error) {
	var (
		plan        *models.Plan
		streakValue int
	)
	uid := userID.String()

	err := db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT completed_meals FROM daily_plans WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			planID, uid,
		).Scan(&raw)
		if err != nil {
			return notFound(err)
		}

		before := models.NewCompletedMeals()
		if err := json.Unmarshal(raw, &before); err != nil {
			return fmt.Errorf("failed to decode completed meals: %w", err)
		}
		after, delta := apply(before)
		encoded, err := encodeCompleted(after)
		if err != nil {
			return err
		}

		plan, err = scanPGPlan(tx.QueryRow(ctx,
			`UPDATE daily_plans SET completed_meals = $2, updated_at = NOW() WHERE id = $1 RETURNING `+planColumns,
			planID, encoded))
		if err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
            UPDATE profiles
            SET streak = GREATEST(streak + $2, 0), updated_at = NOW()
            WHERE user_id = $1
            RETURNING streak
        `, uid, delta).Scan(&streakValue)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to update meal completion: %w", notFound(err))
	}
	return plan, streakValue, nil
}

// ---------- subscriptions ---------------------------------------------------

// AddSubscription stores sub. A target already registered is moved to
// sub.UserID.
func (db *PostgresDB) AddSubscription(ctx context.Context, sub *models.Subscription) error {
	err := db.pool.QueryRow(ctx, `
        INSERT INTO subscriptions (user_id, channel, target)
        VALUES ($1, $2, $3)
        ON CONFLICT (channel, target) DO UPDATE SET user_id = EXCLUDED.user_id
        RETURNING id, created_at
    `, sub.UserID.String(), string(sub.Channel), sub.Target).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add subscription: %w", notFound(err))
	}
	return nil
}

func (db *PostgresDB) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, user_id, channel, target, created_at FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var (
			s       models.Subscription
			userID  string
			channel string
		)
		if err := rows.Scan(&s.ID, &userID, &channel, &s.Target, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if s.UserID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
		}
		s.Channel = models.Channel(channel)
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (db *PostgresDB) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	return err
}

func (db *PostgresDB) DeleteSubscriptionByTarget(ctx context.Context, channel models.Channel, target string) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE channel = $1 AND target = $2`, string(channel), target)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SubscriberOf returns the user a delivery target belongs to.
func (db *PostgresDB) SubscriberOf(ctx context.Context, channel models.Channel, target string) (uuid.UUID, error) {
	var userID string
	err := db.pool.QueryRow(ctx,
		`SELECT user_id FROM subscriptions WHERE channel = $1 AND target = $2`,
		string(channel), target).Scan(&userID)
	if err != nil {
		return uuid.Nil, notFound(err)
	}
	return uuid.Parse(userID)
}
