package presigned

import "errors"

// Authorization errors
var (
	// ErrNoSecretKey is returned when signing or verifying without a configured secret key
	ErrNoSecretKey = errors.New("presigned: no secret key configured")

	// ErrNotConfigured is returned when the static API key path is used but no key is configured
	ErrNotConfigured = errors.New("presigned: API key not configured")

	// ErrMissingParams is returned when sig or expires is missing
	ErrMissingParams = errors.New("presigned: missing presign parameters")

	// ErrInvalidExpiration is returned when the expires parameter is not an integer
	ErrInvalidExpiration = errors.New("presigned: invalid expires parameter")

	// ErrExpired is returned when the presigned URL has expired
	ErrExpired = errors.New("presigned: URL has expired")

	// ErrContentTypeMismatch is returned when the request content type differs from the signed one
	ErrContentTypeMismatch = errors.New("presigned: content type mismatch")

	// ErrInvalidSignature is returned when the signature is invalid
	ErrInvalidSignature = errors.New("presigned: invalid signature")

	// ErrInvalidAPIKey is returned when the X-API-Key header is missing or wrong
	ErrInvalidAPIKey = errors.New("presigned: missing or invalid API key")
)

// IsAuthError returns true if the error is a caller-side authorization failure
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingParams) ||
		errors.Is(err, ErrInvalidExpiration) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrContentTypeMismatch) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrInvalidAPIKey)
}

// IsConfigError returns true if the error comes from missing server configuration
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNoSecretKey) || errors.Is(err, ErrNotConfigured)
}

// ErrorCode is the machine-readable code written in JSON error bodies
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoSecretKey), errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrMissingParams):
		return "missing_presign_params"
	case errors.Is(err, ErrInvalidExpiration):
		return "invalid_expires"
	case errors.Is(err, ErrExpired):
		return "presign_expired"
	case errors.Is(err, ErrContentTypeMismatch):
		return "content_type_mismatch"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "unauthorized"
	}
}
