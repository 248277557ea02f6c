// Package service implements the circulation engines: checkout and
// return of books, the reservation queue with its pickup windows, and
// the daily expiry sweep. Handlers stay thin; every business decision
// lives here, inside a single database transaction per operation.
package service

import "errors"

// Sentinel errors returned by the engines. Callers match them with
// errors.Is; handlers translate them to HTTP status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)
