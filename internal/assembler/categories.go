package assembler

import (
	"math/rand"

	"nutrition-coach/internal/models"
)

var (
	MainCourseKeywords = []string{"chicken", "paneer", "dal", "egg", "fish", "beef", "curry", "kofta", "chickpeas"}
	SideDishKeywords   = []string{"vegetable", "salad", "roti", "chapatti", "naan", "rice"}
	BreakfastKeywords  = []string{"oats", "poha", "paratha", "idli", "dosa", "upma", "sandwich", "egg"}
	LowCarbSides       = []string{"vegetable", "salad", "paneer"}
)

type category struct {
	name     string
	keywords []string
	grams    int
}

var (
	breakfastCategory = category{name: "breakfast", keywords: BreakfastKeywords, grams: 200}
	mainCategory      = category{name: "main", keywords: MainCourseKeywords, grams: 150}
	sideCategory      = category{name: "side", keywords: SideDishKeywords, grams: 100}
)

// sideOverrides narrows side dishes per goal.
var sideOverrides = map[models.Goal][]string{
	models.GoalCarboCut: LowCarbSides,
}

// mealShares is the percent of daily calories given to each meal.
var mealShares = map[string]int{
	models.MealBreakfast: 30,
	models.MealLunch:     40,
	models.MealDinner:    30,
}

// sortByGoal ranks candidates for each goal. Goals not listed fall back to
// defaultSort.
var sortByGoal = map[models.Goal]models.FoodSort{
	models.GoalCarboCut:     {Column: models.ColumnCarbohydrates},
	models.GoalFatCut:       {Column: models.ColumnFats},
	models.GoalWeightLoss:   {Column: models.ColumnProtein, Descending: true},
	models.GoalMuscleGain:   {Column: models.ColumnProtein, Descending: true},
	models.GoalBodybuilding: {Column: models.ColumnProtein, Descending: true},
}

var defaultSort = models.FoodSort{Column: models.ColumnProtein, Descending: true}

func SortFor(goal models.Goal) models.FoodSort {
	if s, ok := sortByGoal[goal]; ok {
		return s
	}
	return defaultSort
}

type slot struct {
	category category
	keywords []string
}

// slotsFor lists the component slots of a meal, padded to MaxComponents by
// repeating the last category.
func slotsFor(mealKey string, goal models.Goal) []slot {
	var plan []slot
	if mealKey == models.MealBreakfast {
		plan = append(plan, slot{category: breakfastCategory, keywords: breakfastCategory.keywords})
	} else {
		sides := sideCategory.keywords
		if override, ok := sideOverrides[goal]; ok {
			sides = override
		}
		plan = append(plan,
			slot{category: mainCategory, keywords: mainCategory.keywords},
			slot{category: sideCategory, keywords: sides},
		)
	}
	for len(plan) < MaxComponents {
		plan = append(plan, plan[len(plan)-1])
	}
	return plan
}

// globalRand draws from the auto-seeded, goroutine-safe math/rand source.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.Intn(n) }
