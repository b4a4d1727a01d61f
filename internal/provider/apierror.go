package provider

import (
	"fmt"
	"io"
	"net/http"

	gencache "github.com/eugener/gencache/internal"
)

// APIError represents an error response from an upstream generator.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

// Error returns a formatted error string including provider, status, and body.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream HTTP status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Unwrap lets callers classify any upstream failure with
// errors.Is(err, gencache.ErrProviderError).
func (e *APIError) Unwrap() error { return gencache.ErrProviderError }

// ParseAPIError reads up to 4KB from the response body and returns an APIError.
func ParseAPIError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
}
