package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
)

// MealKeys lists the meals of a day plan in serving order.
var MealKeys = []string{MealBreakfast, MealLunch, MealDinner}

func KnownMeal(key string) bool {
	for _, k := range MealKeys {
		if k == key {
			return true
		}
	}
	return false
}

type MealComponent struct {
	Food     string `json:"food"`
	Quantity string `json:"quantity"`
	Grams    int    `json:"grams"`
}

type Meal struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Items    []MealComponent `json:"items"`
	Calories int             `json:"calories"`
	Protein  int             `json:"protein"`
	Carbs    int             `json:"carbs"`
	Fat      int             `json:"fat"`
	Fallback bool            `json:"fallback,omitempty"`
}

type Summary struct {
	ActualCalories int `json:"actualCalories"`
	ActualProtein  int `json:"actualProtein"`
	ActualCarbs    int `json:"actualCarbs"`
	ActualFat      int `json:"actualFat"`
}

type PlanData struct {
	Meals   []Meal    `json:"meals"`
	Summary Summary   `json:"summary"`
	Targets TargetSet `json:"targets"`
	Reason  string    `json:"reason,omitempty"`
}

// CompletedMeals maps a meal key to whether the user ate it.
type CompletedMeals map[string]bool

func NewCompletedMeals() CompletedMeals {
	m := make(CompletedMeals, len(MealKeys))
	for _, k := range MealKeys {
		m[k] = false
	}
	return m
}

func (c CompletedMeals) Clone() CompletedMeals {
	out := make(CompletedMeals, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type Plan struct {
	ID             int64          `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	PlanDate       time.Time      `json:"plan_date"`
	Data           PlanData       `json:"plan_data"`
	CompletedMeals CompletedMeals `json:"completed_meals"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
