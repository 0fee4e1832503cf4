package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"nutrition-coach/config"
	"nutrition-coach/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	// Set connection pool parameters
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnLifetime
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	// Connect with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Migrate creates missing tables.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	ddl, err := schema("postgres.sql")
	if err != nil {
		return err
	}
	if _, err := db.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgForeignKeyViolation {
		return models.ErrNotFound
	}
	return err
}

// ---------- profiles --------------------------------------------------------

func (db *PostgresDB) UpsertProfile(ctx context.Context, p *models.Profile) error {
	query := `
        INSERT INTO profiles (user_id, age, gender, height, weight, activity_level, goal,
                              calories, protein, carbs, fat)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (user_id) DO UPDATE
        SET age = EXCLUDED.age, gender = EXCLUDED.gender, height = EXCLUDED.height,
            weight = EXCLUDED.weight, activity_level = EXCLUDED.activity_level, goal = EXCLUDED.goal,
            calories = EXCLUDED.calories, protein = EXCLUDED.protein,
            carbs = EXCLUDED.carbs, fat = EXCLUDED.fat, updated_at = NOW()
        RETURNING streak, checkin_streak, created_at, updated_at
    `

	err := db.pool.QueryRow(ctx, query,
		p.UserID.String(), p.Age, p.Gender, p.Height, p.Weight, p.ActivityLevel, string(p.Goal),
		p.Targets.Calories, p.Targets.Protein, p.Targets.Carbs, p.Targets.Fat,
	).Scan(&p.Streak, &p.CheckinStreak, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `
        SELECT age, gender, height, weight, activity_level, goal,
               calories, protein, carbs, fat, streak, checkin_streak, created_at, updated_at
        FROM profiles
        WHERE user_id = $1
    `

	p := models.Profile{UserID: userID}
	var goal string
	err := db.pool.QueryRow(ctx, query, userID.String()).Scan(
		&p.Age, &p.Gender, &p.Height, &p.Weight, &p.ActivityLevel, &goal,
		&p.Targets.Calories, &p.Targets.Protein, &p.Targets.Carbs, &p.Targets.Fat,
		&p.Streak, &p.CheckinStreak, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", notFound(err))
	}
	p.Goal = models.Goal(goal)
	return &p, nil
}

// DeleteUser removes the profile; plans, feedback and subscriptions go
// with it through ON DELETE CASCADE.
func (db *PostgresDB) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ---------- feedback --------------------------------------------------------

func (db *PostgresDB) InsertFeedback(ctx context.Context, entry *models.FeedbackEntry, next func(last *time.Time, current int) int) (int, error) {
	var streakValue int
	uid := entry.UserID.String()

	err := db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx,
			`SELECT checkin_streak FROM profiles WHERE user_id = $1 FOR UPDATE`, uid,
		).Scan(&current)
		if err != nil {
			return notFound(err)
		}

		var last *time.Time
		err = tx.QueryRow(ctx,
			`SELECT MAX(feedback_date) FROM daily_feedback WHERE user_id = $1`, uid,
		).Scan(&last)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
            INSERT INTO daily_feedback (user_id, satiety, energy, adherence, feedback_date)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id, created_at
        `, uid, entry.Satiety, entry.Energy, entry.Adherence, entry.Day).Scan(&entry.ID, &entry.CreatedAt)
		if pgCode(err) == pgUniqueViolation {
			return models.ErrDuplicateFeedback
		}
		if err != nil {
			return err
		}

		streakValue = next(last, current)
		_, err = tx.Exec(ctx,
			`UPDATE profiles SET checkin_streak = $2, updated_at = NOW() WHERE user_id = $1`,
			uid, streakValue)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return streakValue, nil
}

func (db *PostgresDB) RecentFeedback(ctx context.Context, userID uuid.UUID, limit int) ([]models.FeedbackEntry, error) {
	query := `
        SELECT id, satiety, energy, adherence, feedback_date, created_at
        FROM daily_feedback
        WHERE user_id = $1
        ORDER BY feedback_date DESC
        LIMIT $2
    `

	rows, err := db.pool.Query(ctx, query, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var entries []models.FeedbackEntry
	for rows.Next() {
		e := models.FeedbackEntry{UserID: userID}
		if err := rows.Scan(&e.ID, &e.Satiety, &e.Energy, &e.Adherence, &e.Day, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		e.Day = dateUTC(e.Day)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------- foods -----------------------------------------------------------

func (db *PostgresDB) QueryFoods(ctx context.Context, q models.FoodQuery) ([]models.FoodItem, error) {
	order, err := orderBy(q.Sort)
	if err != nil {
		return nil, err
	}
	exclude := q.Exclude
	if exclude == nil {
		exclude = []string{}
	}

	query := `
        SELECT food_name, caloric_value, protein, carbohydrates, fats, free_sugar, fibre
        FROM food_nutrition_data
        WHERE caloric_value > 0
          AND food_name ILIKE ANY($1)
          AND NOT (food_name = ANY($2))
        ` + order + `
        LIMIT $3
    `

	rows, err := db.pool.Query(ctx, query, likePatterns(q.Keywords), exclude, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var items []models.FoodItem
	for rows.Next() {
		var f models.FoodItem
		if err := rows.Scan(&f.Name, &f.CaloricValue, &f.Protein, &f.Carbohydrates, &f.Fats, &f.FreeSugar, &f.Fibre); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// ReplaceFoods swaps the whole catalog for items in one transaction.
func (db *PostgresDB) ReplaceFoods(ctx context.Context, items []models.FoodItem) (int64, error) {
	var copied int64
	err := db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM food_nutrition_data`); err != nil {
			return err
		}

		var err error
		copied, err = tx.CopyFrom(ctx,
			pgx.Identifier{"food_nutrition_data"},
			[]string{"food_name", "caloric_value", "protein", "carbohydrates", "fats", "free_sugar", "fibre"},
			pgx.CopyFromSlice(len(items), func(i int) ([]interface{}, error) {
				f := items[i]
				return []interface{}{f.Name, f.CaloricValue, f.Protein, f.Carbohydrates, f.Fats, f.FreeSugar, f.Fibre}, nil
			}),
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace foods: %w", err)
	}
	return copied, nil
}
