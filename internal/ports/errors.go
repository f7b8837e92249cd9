package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors;
// the engine returns the trading errors directly so callers can errors.Is on them.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Trading Engine Errors (all recoverable; the engine never panics on them)
	ErrInvalidSize           = errors.New("size must be positive and within the open position size")
	ErrInvalidLeverage       = errors.New("leverage outside the allowed range for this coin")
	ErrInsufficientMargin    = errors.New("insufficient available margin")
	ErrPositionNotFound      = errors.New("position not found or already closed")
	ErrAccountNotInitialized = errors.New("account has not been initialized")

	// Price Feed Errors
	ErrFeedUnavailable   = errors.New("price feed is unavailable")
	ErrConnectionFailed  = errors.New("failed to connect to the price feed")
	ErrRateLimited       = errors.New("API rate limit exceeded")
	ErrStalePrice        = errors.New("price data is older than the staleness bound")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrSymbolUnavailable = errors.New("symbol not available on the price feed")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)
