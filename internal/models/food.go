package models

// FoodItem is one catalog row. Nutrients are per 100 g; nil means unknown.
type FoodItem struct {
	Name          string   `json:"food_name"`
	CaloricValue  float64  `json:"caloric_value"`
	Protein       *float64 `json:"protein"`
	Carbohydrates *float64 `json:"carbohydrates"`
	Fats          *float64 `json:"fats"`
	FreeSugar     *float64 `json:"free_sugar"`
	Fibre         *float64 `json:"fibre"`
}

type NutrientColumn string

const (
	ColumnProtein       NutrientColumn = "protein"
	ColumnCarbohydrates NutrientColumn = "carbohydrates"
	ColumnFats          NutrientColumn = "fats"
)

// Valid guards the column before it is spliced into an ORDER BY clause.
func (c NutrientColumn) Valid() bool {
	switch c {
	case ColumnProtein, ColumnCarbohydrates, ColumnFats:
		return true
	}
	return false
}

type FoodSort struct {
	Column     NutrientColumn
	Descending bool
}

// FoodQuery selects eligible foods whose name contains any keyword
// (case-insensitive), skipping names in Exclude. Nulls sort last.
type FoodQuery struct {
	Keywords []string
	Exclude  []string
	Sort     FoodSort
	Limit    int
}

// Value dereferences a nullable nutrient, treating nil as zero.
func Value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
