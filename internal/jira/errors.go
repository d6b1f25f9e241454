package jira

import (
	"fmt"
)

// NotFoundError reports that a board or sprint lookup matched nothing.
type NotFoundError struct {
	Kind  string // "board" or "sprint"
	Query string // the key or name that was looked up
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found for %q", e.Kind, e.Query)
}

// HTTPError reports a non-2xx API response. A 429 only surfaces as an
// HTTPError once the retry budget is exhausted.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.Status, e.Body)
}

// TransportError reports a connection-level failure after the retry budget
// is exhausted.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jira request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
