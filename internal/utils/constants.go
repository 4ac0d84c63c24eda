package utils

const (
	EarthRadiusKM = 6371.0

	DefaultCurrency = "BDT"
	DefaultTimeZone = "Asia/Dhaka"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes carried in APIError.Code.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeForbidden             = "FORBIDDEN"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInvalidState          = "INVALID_STATE"
	CodeConflict              = "CONFLICT"
	CodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	CodeBadRequest            = "BAD_REQUEST"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInternal              = "INTERNAL_ERROR"
)

const (
	ErrValidationFailed = "Validation failed"
	ErrInternalServer   = "Internal server error"
	ErrUnauthorized     = "Unauthorized access"
	ErrForbidden        = "Access forbidden"
	ErrTooManyRequests  = "Too many requests"
)
