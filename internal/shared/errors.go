package shared

import "errors"

var (
	ErrNotImplemented = errors.New("not implemented")

	// Configuration errors
	ErrMissingConfig      = errors.New("configuration not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")

	// Authentication errors
	ErrAuthFailed       = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrTimeout          = errors.New("operation timed out")

	// External API errors
	ErrAPIRequest = errors.New("external API error")
	ErrValidation = errors.New("validation failed")

	// Store errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Label errors
	ErrInvalidCriteria = errors.New("invalid criteria")
	ErrSmartLabel      = errors.New("smart labels have no explicit tracks")

	// Input validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
)
