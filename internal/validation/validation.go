// Package validation provides input validation for kcbootstrap configuration values.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Validation error types for specific error handling.
var (
	ErrEmptyValue        = errors.New("value cannot be empty")
	ErrTooLong           = errors.New("value exceeds maximum length")
	ErrInvalidFormat     = errors.New("invalid format")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// Constraints for validation.
const (
	MaxNameLength       = 255
	MaxIdentifierLength = 255
)

// URLError provides detailed URL validation error information.
type URLError struct {
	URL    string
	Reason string
	Err    error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", truncate(e.URL, 80), e.Reason)
}

func (e *URLError) Unwrap() error {
	return e.Err
}

// NameError provides detailed name validation error information.
type NameError struct {
	Name   string
	Reason string
	Err    error
}

func (e *NameError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid name %q: %s", truncate(e.Name, 50), e.Reason)
	}
	return fmt.Sprintf("invalid name %q: %v", truncate(e.Name, 50), e.Err)
}

func (e *NameError) Unwrap() error {
	return e.Err
}

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &URLError{URL: raw, Reason: "cannot be empty", Err: ErrEmptyValue}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return &URLError{URL: raw, Reason: err.Error(), Err: ErrInvalidFormat}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &URLError{URL: raw, Reason: "scheme must be http or https", Err: ErrUnsupportedScheme}
	}
	if u.Host == "" {
		return &URLError{URL: raw, Reason: "missing host", Err: ErrInvalidFormat}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return &URLError{URL: raw, Reason: "must not carry a query or fragment", Err: ErrInvalidFormat}
	}

	return nil
}

// ValidateName validates a free-form label (display name, claim, attribute).
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &NameError{Name: name, Reason: "cannot be empty", Err: ErrEmptyValue}
	}

	if len(name) > MaxNameLength {
		return &NameError{
			Name:   name,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxNameLength),
			Err:    ErrTooLong,
		}
	}

	return nil
}

// ValidateIdentifier validates a realm name or identity provider alias.
func ValidateIdentifier(id string) error {
	if strings.TrimSpace(id) == "" {
		return &NameError{Name: id, Reason: "cannot be empty", Err: ErrEmptyValue}
	}
	if len(id) > MaxIdentifierLength {
		return &NameError{
			Name:   id,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxIdentifierLength),
			Err:    ErrTooLong,
		}
	}
	// A '/' cannot be carried in an admin API path segment.
	if strings.ContainsRune(id, '/') || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return &NameError{
			Name:   id,
			Reason: "must not contain '/' or control characters",
			Err:    ErrInvalidFormat,
		}
	}
	return nil
}

// truncate shortens a string for display in error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
