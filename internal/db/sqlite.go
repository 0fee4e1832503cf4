package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"nutrition-coach/internal/models"
)

// SQLiteDB implements the same stores as PostgresDB on an embedded
// database file. Dates are stored as YYYY-MM-DD text, timestamps as unix
// seconds.
type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &SQLiteDB{db: db, now: time.Now}, nil
}

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	ddl, err := schema("sqlite.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Close() {
	s.db.Close()
}

func (s *SQLiteDB) stamp() int64 { return s.now().Unix() }

func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func sqliteNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) || sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return models.ErrNotFound
	}
	return err
}

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, s, time.UTC)
}

func formatDate(t time.Time) string { return dateUTC(t).Format(models.DateLayout) }

// withTx runs fn in a transaction, rolling back when it fails.
func (s *SQLiteDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------- profiles --------------------------------------------------------

func (s *SQLiteDB) UpsertProfile(ctx context.Context, p *models.Profile) error {
	now := s.stamp()
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO profiles (user_id, age, gender, height, weight, activity_level, goal,
                              calories, protein, carbs, fat, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE
        SET age = excluded.age, gender = excluded.gender, height = excluded.height,
            weight = excluded.weight, activity_level = excluded.activity_level, goal = excluded.goal,
            calories = excluded.calories, protein = excluded.protein,
            carbs = excluded.carbs, fat = excluded.fat, updated_at = excluded.updated_at
        RETURNING streak, checkin_streak, created_at, updated_at
    `,
		p.UserID.String(), p.Age, p.Gender, p.Height, p.Weight, p.ActivityLevel, string(p.Goal),
		p.Targets.Calories, p.Targets.Protein, p.Targets.Carbs, p.Targets.Fat, now, now,
	).Scan(&p.Streak, &p.CheckinStreak, &created, &updated)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = fromUnix(created), fromUnix(updated)
	return nil
}

func (s *SQLiteDB) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p := models.Profile{UserID: userID}
	var (
		goal             string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT age, gender, height, weight, activity_level, goal,
               calories, protein, carbs, fat, streak, checkin_streak, created_at, updated_at
        FROM profiles WHERE user_id = ?
    `, userID.String()).Scan(
		&p.Age, &p.Gender, &p.Height, &p.Weight, &p.ActivityLevel, &goal,
		&p.Targets.Calories, &p.Targets.Protein, &p.Targets.Carbs, &p.Targets.Fat,
		&p.Streak, &p.CheckinStreak, &created, &updated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", sqliteNotFound(err))
	}
	p.Goal = models.Goal(goal)
	p.CreatedAt, p.UpdatedAt = fromUnix(created), fromUnix(updated)
	return &p, nil
}

func (s *SQLiteDB) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ---------- feedback --------------------------------------------------------

func (s *SQLiteDB) InsertFeedback(ctx context.Context, entry *models.FeedbackEntry, next func(last *time.Time, current int) int) (int, error) {
	var streakValue int
	uid := entry.UserID.String()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx, `SELECT checkin_streak FROM profiles WHERE user_id = ?`, uid).Scan(&current)
		if err != nil {
			return sqliteNotFound(err)
		}

		var lastDay sql.NullString
		err = tx.QueryRowContext(ctx, `SELECT MAX(feedback_date) FROM daily_feedback WHERE user_id = ?`, uid).Scan(&lastDay)
		if err != nil {
			return err
		}
		var last *time.Time
		if lastDay.Valid {
			d, err := parseDate(lastDay.String)
			if err != nil {
				return err
			}
			last = &d
		}

		now := s.stamp()
		res, err := tx.ExecContext(ctx, `
            INSERT INTO daily_feedback (user_id, satiety, energy, adherence, feedback_date, created_at)
            VALUES (?, ?, ?, ?, ?, ?)
        `, uid, entry.Satiety, entry.Energy, entry.Adherence, formatDate(entry.Day), now)
		if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return models.ErrDuplicateFeedback
		}
		if err != nil {
			return err
		}
		if entry.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		entry.CreatedAt = fromUnix(now)

		streakValue = next(last, current)
		_, err = tx.ExecContext(ctx,
			`UPDATE profiles SET checkin_streak = ?, updated_at = ? WHERE user_id = ?`,
			streakValue, now, uid)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return streakValue, nil
}

func (s *SQLiteDB) RecentFeedback(ctx context.Context, userID uuid.UUID, limit int) ([]models.FeedbackEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, satiety, energy, adherence, feedback_date, created_at
        FROM daily_feedback
        WHERE user_id = ?
        ORDER BY feedback_date DESC
        LIMIT ?
    `, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var entries []models.FeedbackEntry
	for rows.Next() {
		var (
			e       = models.FeedbackEntry{UserID: userID}
			day     string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Satiety, &e.Energy, &e.Adherence, &day, &created); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		if e.Day, err = parseDate(day); err != nil {
			return nil, err
		}
		e.CreatedAt = fromUnix(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------- foods -----------------------------------------------------------

func (s *SQLiteDB) QueryFoods(ctx context.Context, q models.FoodQuery) ([]models.FoodItem, error) {
	if len(q.Keywords) == 0 {
		return nil, nil
	}
	order, err := orderBy(q.Sort)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []interface{}
	)

	like := make([]string, len(q.Keywords))
	for i, p := range likePatterns(q.Keywords) {
		like[i] = "lower(food_name) LIKE ?"
		args = append(args, p)
	}
	where = append(where, "caloric_value > 0", "("+strings.Join(like, " OR ")+")")

	if len(q.Exclude) > 0 {
		where = append(where, "food_name NOT IN (?"+strings.Repeat(", ?", len(q.Exclude)-1)+")")
		for _, name := range q.Exclude {
			args = append(args, name)
		}
	}

	query := `SELECT food_name, caloric_value, protein, carbohydrates, fats, free_sugar, fibre
        FROM food_nutrition_data
        WHERE ` + strings.Join(where, " AND ") + "\n" + order
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var items []models.FoodItem
	for rows.Next() {
		var (
			f                                      models.FoodItem
			protein, carbs, fats, freeSugar, fibre sql.NullFloat64
		)
		if err := rows.Scan(&f.Name, &f.CaloricValue, &protein, &carbs, &fats, &freeSugar, &fibre); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		f.Protein, f.Carbohydrates, f.Fats = nullable(protein), nullable(carbs), nullable(fats)
		f.FreeSugar, f.Fibre = nullable(freeSugar), nullable(fibre)
		items = append(items, f)
	}
	return items, rows.Err()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func (s *SQLiteDB) ReplaceFoods(ctx context.Context, items []models.FoodItem) (int64, error) {
	var inserted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM food_nutrition_data`); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO food_nutrition_data (food_name, caloric_value, protein, carbohydrates, fats, free_sugar, fibre)
            VALUES (?, ?, ?, ?, ?, ?, ?)
        `)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range items {
			if _, err := stmt.ExecContext(ctx, f.Name, f.CaloricValue, f.Protein, f.Carbohydrates, f.Fats, f.FreeSugar, f.Fibre); err != nil {
				return fmt.Errorf("insert %q: %w", f.Name, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace foods: %w", err)
	}
	return inserted, nil
}
