package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrCatalogUnavailable indicates the local catalog database is missing or unreadable
	ErrCatalogUnavailable = errors.New("catalog database is not available")

	// ErrInvalidCatalog indicates a downloaded catalog failed validation
	ErrInvalidCatalog = errors.New("downloaded catalog is not a valid database")

	// ErrNoMirrors indicates no file mirror is currently reachable
	ErrNoMirrors = errors.New("no mirror is reachable")

	// ErrMissingAPIKey indicates an external service was called without credentials
	ErrMissingAPIKey = errors.New("api key is not configured")

	// ErrMalformedResponse indicates an external service returned an unusable payload
	ErrMalformedResponse = errors.New("malformed response")

	// ErrHistoryEmpty indicates there is no watch history to base recommendations on
	ErrHistoryEmpty = errors.New("watch history is empty")
)
