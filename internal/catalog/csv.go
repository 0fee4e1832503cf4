// Package catalog reads the food nutrition dataset used to seed the food
// table.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"nutrition-coach/internal/models"
)

// Header names as they appear in the dataset, compared case-insensitively.
const (
	colFood          = "food"
	colCaloricValue  = "caloric value"
	colProtein       = "protein"
	colCarbohydrates = "carbohydrates"
	colFats          = "fats"
	colFreeSugar     = "free sugar"
	colFibre         = "fibre"
)

var ErrNoFoodColumn = errors.New("csv has no food column")

// Parse reads all rows of a nutrition CSV. Unknown columns are ignored, empty
// or non-numeric cells become nil, rows without a food name are skipped.
func Parse(r io.Reader) ([]models.FoodItem, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	if _, ok := index[colFood]; !ok {
		return nil, ErrNoFoodColumn
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	number := func(row []string, col string) *float64 {
		v, err := strconv.ParseFloat(cell(row, col), 64)
		if err != nil {
			return nil
		}
		return &v
	}

	var items []models.FoodItem
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		name := cell(row, colFood)
		if name == "" {
			continue
		}
		items = append(items, models.FoodItem{
			Name:          name,
			CaloricValue:  models.Value(number(row, colCaloricValue)),
			Protein:       number(row, colProtein),
			Carbohydrates: number(row, colCarbohydrates),
			Fats:          number(row, colFats),
			FreeSugar:     number(row, colFreeSugar),
			Fibre:         number(row, colFibre),
		})
	}
	return items, nil
}
