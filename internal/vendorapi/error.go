// Package vendorapi holds the shared error type for third-party HTTP APIs.
package vendorapi

import "fmt"

// APIError reports a non-2xx response from a vendor HTTP API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d %s", e.Service, e.StatusCode, e.Body)
}
