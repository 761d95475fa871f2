// Package utils holds helpers shared by the HTTP-facing packages.
package utils

import (
	"errors"
	"net/http"
)

// StatusError is an error that carries the HTTP status it should be
// reported with.
type StatusError struct {
	error
	status int
}

// Status returns the status code of the error.
func (se StatusError) Status() int {
	return se.status
}

// Unwrap returns the underlying error.
func (se StatusError) Unwrap() error {
	return se.error
}

// NewStatusError creates a new StatusError.
func NewStatusError(err error, s int) error {
	return StatusError{error: err, status: s}
}

// StatusOf returns the status carried by err, or 500 when err does not
// carry one.
func StatusOf(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.status
	}
	return http.StatusInternalServerError
}
