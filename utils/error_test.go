package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {

	t.Run("status error reports its status", func(t *testing.T) {
		err := NewStatusError(errors.New("unauthorized"), http.StatusUnauthorized)
		if got := StatusOf(err); got != http.StatusUnauthorized {
			t.Errorf("expected %d, got %d", http.StatusUnauthorized, got)
		}
	})

	t.Run("wrapped status error reports its status", func(t *testing.T) {
		err := fmt.Errorf("authenticate: %w", NewStatusError(errors.New("forbidden"), http.StatusForbidden))
		if got := StatusOf(err); got != http.StatusForbidden {
			t.Errorf("expected %d, got %d", http.StatusForbidden, got)
		}
	})

	t.Run("plain error is internal", func(t *testing.T) {
		if got := StatusOf(errors.New("boom")); got != http.StatusInternalServerError {
			t.Errorf("expected %d, got %d", http.StatusInternalServerError, got)
		}
	})

	t.Run("underlying error is unwrapped", func(t *testing.T) {
		cause := errors.New("cause")
		if !errors.Is(NewStatusError(cause, http.StatusBadRequest), cause) {
			t.Error("expected status error to wrap its cause")
		}
	})
}
