package keycloak

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthenticationError is returned when the admin token cannot be obtained.
// It is fatal to a bootstrap run.
type AuthenticationError struct {
	// Description is the token endpoint's error_description, or a summary of
	// the underlying failure when the endpoint did not provide one.
	Description string
	Err         error
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Description
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// APIError represents a non-201 admin API response.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 from the admin API, which Keycloak
// returns when the resource already exists.
func IsConflict(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusConflict
	}
	return false
}

// IsUnauthorized reports whether err is a 401 from the admin API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}
