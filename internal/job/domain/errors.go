package domain

import "errors"

var (
	// Validación (400)
	ErrInvalidCEP            = errors.New("Invalid CEP format")
	ErrInvalidPriority       = errors.New("Invalid priority, expected High or Low")
	ErrMissingIdempotencyKey = errors.New("Idempotency-Key header is required")

	// Conflicto (409)
	ErrDuplicateRequest        = errors.New("Duplicate request detected")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already exists")

	ErrJobNotFound       = errors.New("Job not found")
	ErrJobAlreadyExists  = errors.New("job already exists")
	ErrJobNotCancellable = errors.New("Only pending jobs can be cancelled")

	// Internos
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrJobStatusConflict = errors.New("job status changed concurrently")
	ErrAddressNotFound   = errors.New("address not found")

	// Analítica no configurada (503)
	ErrAnalyticsUnavailable = errors.New("job analytics are not enabled")
)
