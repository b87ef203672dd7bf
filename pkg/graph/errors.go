package graph

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// APIError is a non-2xx response from the Graph endpoint.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph request failed: %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// IsNotFound reports whether err is a 404 from Graph.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsAuthError reports whether err came from token acquisition rather than
// the Graph call itself. Credential problems abort a run before any page
// is read.
func IsAuthError(err error) bool {
	var rerr *oauth2.RetrieveError
	return errors.As(err, &rerr)
}

// IsThrottled reports whether err is a 429 from Graph.
func IsThrottled(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
