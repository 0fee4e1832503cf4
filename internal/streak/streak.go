// Package streak holds the two streak rules.
//
// The check-in streak counts consecutive UTC days with submitted feedback.
// The completion streak moves by one whenever a day's plan crosses between
// fully completed and not fully completed.
package streak

import (
	"time"

	"nutrition-coach/internal/models"
)

// NextCheckin returns the check-in streak after a submission at now, given
// the day of the previous submission (nil if none) and the current value.
func NextCheckin(last *time.Time, current int, now time.Time) int {
	if last == nil {
		return 1
	}
	yesterday := models.Day(now).AddDate(0, 0, -1)
	if models.Day(*last).Equal(yesterday) {
		return current + 1
	}
	return 1
}

type Delta int

const (
	Decrement Delta = -1
	NoChange  Delta = 0
	Increment Delta = 1
)

// AllComplete reports whether every meal of the day is marked eaten.
func AllComplete(m models.CompletedMeals) bool {
	for _, k := range models.MealKeys {
		if !m[k] {
			return false
		}
	}
	return true
}

// Edge compares completion before and after a change.
func Edge(before, after models.CompletedMeals) Delta {
	was, is := AllComplete(before), AllComplete(after)
	switch {
	case !was && is:
		return Increment
	case was && !is:
		return Decrement
	default:
		return NoChange
	}
}

// Toggle marks one meal and reports the resulting streak move. before is not
// modified.
func Toggle(before models.CompletedMeals, meal string, done bool) (models.CompletedMeals, Delta) {
	after := before.Clone()
	for _, k := range models.MealKeys {
		if _, ok := after[k]; !ok {
			after[k] = false
		}
	}
	after[meal] = done
	return after, Edge(before, after)
}

// Apply moves a stored streak by d, never below zero.
func Apply(current int, d Delta) int {
	next := current + int(d)
	if next < 0 {
		return 0
	}
	return next
}
