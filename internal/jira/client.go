package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ResponseKind discriminates the three success shapes an API call can
// produce. Callers must handle all three rather than assuming JSON.
type ResponseKind int

const (
	// ResponseJSON is a 2xx response with a valid JSON body.
	ResponseJSON ResponseKind = iota
	// ResponseEmpty is a 2xx response with no body (update endpoints).
	ResponseEmpty
	// ResponseRaw is a 2xx response whose body is not valid JSON. Parse
	// failures on success responses downgrade to raw text, not errors.
	ResponseRaw
)

// Response is the classified result of a successful API call.
type Response struct {
	Kind ResponseKind
	JSON json.RawMessage
	Raw  string
}

// Decode unmarshals a JSON response into v. Empty and raw responses are an
// error here: endpoints that expect a body call Decode, the rest check Kind.
func (r *Response) Decode(v interface{}) error {
	if r.Kind != ResponseJSON {
		return fmt.Errorf("expected JSON response, got %v", r.Kind)
	}
	return json.Unmarshal(r.JSON, v)
}

// Client provides HTTP access to a Jira instance. All fields are set at
// construction and never mutated, so a single Client is safe for
// concurrent use.
type Client struct {
	BaseURL    string
	Email      string
	APIToken   string
	APIVersion int // 2 (plain-text descriptions) or 3 (ADF)
	MaxRetries int // retry budget per logical call
	RetryBase  time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new Jira client with default timeout and retry budget.
func NewClient(baseURL, email, apiToken string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Email:      email,
		APIToken:   apiToken,
		APIVersion: 3,
		MaxRetries: DefaultMaxRetries,
		RetryBase:  RetryBaseDelay,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// apiPath returns the versioned REST API prefix.
func (c *Client) apiPath() string {
	return fmt.Sprintf("/rest/api/%d", c.APIVersion)
}

// newRetryBackoff returns the delay policy for transient failures: the delay
// starts at RetryBase and strictly doubles on each retry.
func (c *Client) newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.RetryBase
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 10 * time.Minute
	bo.MaxElapsedTime = 0 // budget is attempt-counted, not time-bounded
	bo.Reset()            // pick up the adjusted initial interval
	return bo
}

// doRequest executes an authenticated request and classifies the response.
//
// 429 responses and connection errors are retried with exponential backoff
// until the retry budget is exhausted; each retry consumes one unit of
// budget regardless of the trigger. Any other non-2xx status fails
// immediately with *HTTPError.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body interface{}) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	bo := c.newRetryBackoff()
	var lastErr error

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		resp, retryable, err := c.attempt(ctx, method, apiURL, payload)
		if err == nil {
			return resp, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		if attempt == c.MaxRetries {
			break
		}

		delay := bo.NextBackOff()
		if ra, ok := retryAfter(err); ok {
			delay = ra
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	// Budget exhausted: a 429 surfaces as its HTTPError, a connection
	// failure as TransportError.
	var he *HTTPError
	if errors.As(lastErr, &he) {
		return nil, he
	}
	return nil, &TransportError{Err: lastErr}
}

// rateLimitError carries the Retry-After hint alongside the 429 HTTPError.
type rateLimitError struct {
	*HTTPError
	retryAfter time.Duration
	hasHint    bool
}

func (e *rateLimitError) Unwrap() error { return e.HTTPError }

// retryAfter extracts a server-supplied delay hint, if any.
func retryAfter(err error) (time.Duration, bool) {
	if rl, ok := err.(*rateLimitError); ok && rl.hasHint {
		return rl.retryAfter, true
	}
	return 0, false
}

// attempt performs a single request. The second return reports whether the
// failure is retryable.
func (c *Client) attempt(ctx context.Context, method, apiURL string, payload []byte) (*Response, bool, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	req.SetBasicAuth(c.Email, c.APIToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &rateLimitError{
			HTTPError: &HTTPError{Status: resp.StatusCode, Body: string(respBody)},
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				rl.retryAfter = time.Duration(seconds) * time.Second
				rl.hasHint = true
			}
		}
		return nil, true, rl
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return &Response{Kind: ResponseEmpty}, false, nil
	}
	if json.Valid(respBody) {
		return &Response{Kind: ResponseJSON, JSON: respBody}, false, nil
	}
	return &Response{Kind: ResponseRaw, Raw: string(respBody)}, false, nil
}

// FindBoard resolves the first board associated with a project key.
// When a project has multiple boards the first one wins; this is a
// documented simplification.
func (c *Client) FindBoard(ctx context.Context, projectKey string) (*Board, error) {
	params := url.Values{"projectKeyOrId": {projectKey}}
	apiURL := fmt.Sprintf("%s/rest/agile/1.0/board?%s", c.BaseURL, params.Encode())

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}

	var result BoardsResponse
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("parse board response: %w", err)
	}

	if len(result.Values) == 0 {
		return nil, &NotFoundError{Kind: "board", Query: projectKey}
	}
	return &result.Values[0], nil
}

// ListSprints returns all sprints on a board in the given states,
// handling pagination.
func (c *Client) ListSprints(ctx context.Context, boardID int, states []string) ([]Sprint, error) {
	var all []Sprint
	startAt := 0

	for {
		params := url.Values{
			"state":      {strings.Join(states, ",")},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(MaxPageSize)},
		}
		apiURL := fmt.Sprintf("%s/rest/agile/1.0/board/%d/sprint?%s", c.BaseURL, boardID, params.Encode())

		resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("list sprints: %w", err)
		}

		var result SprintsResponse
		if err := resp.Decode(&result); err != nil {
			return nil, fmt.Errorf("parse sprint response: %w", err)
		}

		all = append(all, result.Values...)
		if result.IsLast || len(result.Values) == 0 {
			break
		}
		startAt += len(result.Values)
	}

	return all, nil
}

// FindSprint resolves a sprint on the board by exact name match, restricted
// to the given states.
func (c *Client) FindSprint(ctx context.Context, boardID int, name string, states []string) (*Sprint, error) {
	sprints, err := c.ListSprints(ctx, boardID, states)
	if err != nil {
		return nil, err
	}
	for i := range sprints {
		if sprints[i].Name == name {
			return &sprints[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "sprint", Query: name}
}

// SprintContainsIssue reports whether the issue is currently in the sprint.
func (c *Client) SprintContainsIssue(ctx context.Context, sprintID int, issueKey string) (bool, error) {
	params := url.Values{
		"jql":    {fmt.Sprintf("key = %s", QuoteJQL(issueKey))},
		"fields": {"key"},
	}
	apiURL := fmt.Sprintf("%s/rest/agile/1.0/sprint/%d/issue?%s", c.BaseURL, sprintID, params.Encode())

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return false, fmt.Errorf("query sprint %d issues: %w", sprintID, err)
	}

	var result SearchResponse
	if err := resp.Decode(&result); err != nil {
		return false, fmt.Errorf("parse sprint issue response: %w", err)
	}
	return len(result.Issues) > 0, nil
}

// SearchOpenIssues finds not-Done issues in the project whose summary
// contains the given text, with descriptions populated. An empty result is
// valid and means no existing issue.
func (c *Client) SearchOpenIssues(ctx context.Context, projectKey, summary string) ([]Issue, error) {
	jql := fmt.Sprintf("project = %s AND summary ~ %s AND statusCategory != Done",
		QuoteJQL(projectKey), QuoteJQL(summary))

	params := url.Values{
		"jql":    {jql},
		"fields": {"summary,description,status"},
	}
	apiURL := fmt.Sprintf("%s%s/search?%s", c.BaseURL, c.apiPath(), params.Encode())

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	var result SearchResponse
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return result.Issues, nil
}

// CreateIssue creates a Story issue and returns its key. The description is
// sent as plain text on API v2 and as an ADF document on v3.
func (c *Client) CreateIssue(ctx context.Context, projectKey, summary, description string) (string, error) {
	payload := CreateIssueRequest{
		Fields: CreateFields{
			Project:     ProjectRef{Key: projectKey},
			Summary:     summary,
			Description: c.encodeDescription(description),
			IssueType:   TypeRef{Name: "Story"},
		},
	}

	apiURL := fmt.Sprintf("%s%s/issue", c.BaseURL, c.apiPath())

	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}

	var created CreateIssueResponse
	if err := resp.Decode(&created); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if created.Key == "" {
		return "", fmt.Errorf("create response missing issue key")
	}
	return created.Key, nil
}

// UpdateDescription overwrites the issue's description field.
func (c *Client) UpdateDescription(ctx context.Context, issueKey, description string) error {
	payload := UpdateIssueRequest{
		Fields: map[string]interface{}{
			"description": c.encodeDescription(description),
		},
	}

	apiURL := fmt.Sprintf("%s%s/issue/%s", c.BaseURL, c.apiPath(), url.PathEscape(issueKey))

	// PUT returns 204 No Content on success; any body is tolerated.
	if _, err := c.doRequest(ctx, http.MethodPut, apiURL, payload); err != nil {
		return fmt.Errorf("update issue %s: %w", issueKey, err)
	}
	return nil
}

// AssignIssueToSprint moves the issue into the sprint.
func (c *Client) AssignIssueToSprint(ctx context.Context, sprintID int, issueKey string) error {
	payload := map[string]interface{}{
		"issues": []string{issueKey},
	}

	apiURL := fmt.Sprintf("%s/rest/agile/1.0/sprint/%d/issue", c.BaseURL, sprintID)

	if _, err := c.doRequest(ctx, http.MethodPost, apiURL, payload); err != nil {
		return fmt.Errorf("assign issue %s to sprint %d: %w", issueKey, sprintID, err)
	}
	return nil
}

// CheckAuth verifies the configured credentials against the API.
func (c *Client) CheckAuth(ctx context.Context) error {
	apiURL := fmt.Sprintf("%s%s/myself", c.BaseURL, c.apiPath())
	if _, err := c.doRequest(ctx, http.MethodGet, apiURL, nil); err != nil {
		return fmt.Errorf("auth check: %w", err)
	}
	return nil
}

// encodeDescription renders a description in the wire form the configured
// API version expects.
func (c *Client) encodeDescription(text string) interface{} {
	if c.APIVersion >= 3 {
		return ADFFromText(text)
	}
	return text
}

// QuoteJQL quotes a value for interpolation into a JQL query, escaping
// embedded quotes and backslashes so summary text cannot alter the query.
func QuoteJQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
