package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateFeedback = errors.New("feedback already submitted for today")
	ErrInvalidFeedback   = errors.New("invalid feedback")
	ErrUnknownMeal       = errors.New("unknown meal")
	ErrIncompleteProfile = errors.New("user profile is incomplete")
	ErrInvalidProfile    = errors.New("invalid profile")
)

func invalidProfile(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProfile, fmt.Sprintf(format, args...))
}
