package app

import (
	"context"
	"errors"
	"fmt"

	"gopherai-interview/internal/repository"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrSessionNotFound        = errors.New("session not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrGenerationFailed       = errors.New("generation failed")
	ErrStoreTimeout           = errors.New("session store timeout")
)

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func invalidState(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidStateTransition, msg)
}

// mapStoreError folds storage failures into the service taxonomy. A store
// deadline means the write may or may not have committed; callers must
// re-fetch before retrying.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrStoreTimeout):
		return "timeout"
	}
	return "error"
}
