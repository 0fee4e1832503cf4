package db

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nutrition-coach/internal/models"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func schema(name string) (string, error) {
	b, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return string(b), nil
}

// orderBy renders the ORDER BY clause of a food query. The column is
// checked against the known nutrient columns before it reaches SQL.
func orderBy(s models.FoodSort) (string, error) {
	col := s.Column
	if col == "" {
		col = models.ColumnProtein
	}
	if !col.Valid() {
		return "", fmt.Errorf("invalid sort column %q", col)
	}
	dir := "ASC"
	if s.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, id", col, dir), nil
}

func likePatterns(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, k := range keywords {
		out[i] = "%" + strings.ToLower(k) + "%"
	}
	return out
}

func encodePlanData(d models.PlanData) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan data: %w", err)
	}
	return b, nil
}

func encodeCompleted(c models.CompletedMeals) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completed meals: %w", err)
	}
	return b, nil
}

// decodePlan fills the JSON columns of p.
func decodePlan(p *models.Plan, userID string, data, completed []byte) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	p.UserID = id
	if err := json.Unmarshal(data, &p.Data); err != nil {
		return fmt.Errorf("failed to decode plan %d: %w", p.ID, err)
	}
	p.CompletedMeals = models.NewCompletedMeals()
	if err := json.Unmarshal(completed, &p.CompletedMeals); err != nil {
		return fmt.Errorf("failed to decode completed meals of plan %d: %w", p.ID, err)
	}
	return nil
}

func dateUTC(t time.Time) time.Time {
	return models.Day(t)
}
