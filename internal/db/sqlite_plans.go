package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nutrition-coach/internal/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLitePlan(row rowScanner) (*models.Plan, error) {
	var (
		p                models.Plan
		userID, day      string
		data, completed  []byte
		created, updated int64
	)
	if err := row.Scan(&p.ID, &userID, &day, &data, &completed, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.PlanDate, err = parseDate(day); err != nil {
		return nil, err
	}
	p.CreatedAt, p.UpdatedAt = fromUnix(created), fromUnix(updated)
	if err := decodePlan(&p, userID, data, completed); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteDB) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	data, err := encodePlanData(plan.Data)
	if err != nil {
		return err
	}

	now := s.stamp()
	saved, err := scanSQLitePlan(s.db.QueryRowContext(ctx, `
        INSERT INTO daily_plans (user_id, plan_date, plan_data, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(user_id, plan_date) DO UPDATE
        SET plan_data = excluded.plan_data, updated_at = excluded.updated_at
        RETURNING `+planColumns,
		plan.UserID.String(), formatDate(plan.PlanDate), string(data), now, now))
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", sqliteNotFound(err))
	}
	*plan = *saved
	return nil
}

func (s *SQLiteDB) ListPlans(ctx context.Context, userID uuid.UUID) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE user_id = ? ORDER BY plan_date DESC`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	plans := []models.Plan{}
	for rows.Next() {
		p, err := scanSQLitePlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *SQLiteDB) GetPlan(ctx context.Context, userID uuid.UUID, planID int64) (*models.Plan, error) {
	p, err := scanSQLitePlan(s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE id = ? AND user_id = ?`,
		planID, userID.String()))
	if err != nil {
		return nil, sqliteNotFound(err)
	}
	return p, nil
}

func (s *SQLiteDB) GetPlanByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*models.Plan, error) {
	p, err := scanSQLitePlan(s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM daily_plans WHERE user_id = ? AND plan_date = ?`,
		userID.String(), formatDate(date)))
	if err != nil {
		return nil, sqliteNotFound(err)
	}
	return p, nil
}

// UpdateMealCompletion runs in an immediate transaction, so the write lock is
// held from the read of completed_meals to the streak update.
func (s *SQLiteDB) UpdateMealCompletion(ctx context.Context, userID uuid.UUID, planID int64, apply func(models.CompletedMeals) (models.CompletedMeals, int)) (*models.Plan, int, error) {
	var (
		plan        *models.Plan
		streakValue int
	)
	uid := userID.String()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx,
			`SELECT completed_meals FROM daily_plans WHERE id = ? AND user_id = ?`,
			planID, uid,
		).Scan(&raw)
		if err != nil {
			return sqliteNotFound(err)
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

		now := s.stamp()
		plan, err = scanSQLitePlan(tx.QueryRowContext(ctx,
			`UPDATE daily_plans SET completed_meals = ?, updated_at = ? WHERE id = ? RETURNING `+planColumns,
			string(encoded), now, planID))
		if err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, `
            UPDATE profiles
            SET streak = MAX(streak + ?, 0), updated_at = ?
            WHERE user_id = ?
            RETURNING streak
        `, delta, now, uid).Scan(&streakValue)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to update meal completion: %w", sqliteNotFound(err))
	}
	return plan, streakValue, nil
}

// ---------- subscriptions ---------------------------------------------------

func (s *SQLiteDB) AddSubscription(ctx context.Context, sub *models.Subscription) error {
	var created int64
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO subscriptions (user_id, channel, target, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(channel, target) DO UPDATE SET user_id = excluded.user_id
        RETURNING id, created_at
    `, sub.UserID.String(), string(sub.Channel), sub.Target, s.stamp()).Scan(&sub.ID, &created)
	if err != nil {
		return fmt.Errorf("failed to add subscription: %w", sqliteNotFound(err))
	}
	sub.CreatedAt = fromUnix(created)
	return nil
}

func (s *SQLiteDB) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, channel, target, created_at FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var (
			sub             models.Subscription
			userID, channel string
			created         int64
		)
		if err := rows.Scan(&sub.ID, &userID, &channel, &sub.Target, &created); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if sub.UserID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
		}
		sub.Channel = models.Channel(channel)
		sub.CreatedAt = fromUnix(created)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteDB) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) DeleteSubscriptionByTarget(ctx context.Context, channel models.Channel, target string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE channel = ? AND target = ?`, string(channel), target)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) SubscriberOf(ctx context.Context, channel models.Channel, target string) (uuid.UUID, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM subscriptions WHERE channel = ? AND target = ?`,
		string(channel), target).Scan(&userID)
	if err != nil {
		return uuid.Nil, sqliteNotFound(err)
	}
	return uuid.Parse(userID)
}
