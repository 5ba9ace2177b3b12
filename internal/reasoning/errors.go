package reasoning

import "fmt"

// APIError represents a non-2xx reply from the reasoning endpoint
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reasoning API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed on a retry.
// Rate limits and server-side failures are transient; client errors are not.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// classifyHTTPError converts a non-2xx response into an APIError
func classifyHTTPError(statusCode int, message string) error {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
	}
}
