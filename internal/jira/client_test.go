package jira

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient points a fast-retrying client at a test server.
func testClient(url string, retries int) *Client {
	c := NewClient(url, "user@example.com", "token")
	c.MaxRetries = retries
	c.RetryBase = time.Millisecond
	return c
}

func TestBackoffDelaysDouble(t *testing.T) {
	c := testClient("http://example.invalid", 5)
	c.RetryBase = 100 * time.Millisecond

	bo := c.newRetryBackoff()
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i, w := range want {
		got := bo.NextBackOff()
		if got != w {
			t.Errorf("delay %d = %v, want %v", i, got, w)
		}
	}
}

func TestRateLimitRetriesThenSucceeds(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	resp, err := c.doRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, ResponseJSON, resp.Kind)
	assert.Equal(t, 3, attempts)
}

func TestRateLimitBudgetExhausted(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2)
	_, err := c.doRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.Error(t, err)

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusTooManyRequests, he.Status)
	// One initial attempt plus the full retry budget.
	assert.Equal(t, 3, attempts)
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 1)
	// A generous base delay would stall the test if the header were ignored.
	c.RetryBase = time.Hour

	start := time.Now()
	_, err := c.doRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, 2, attempts)
}

func TestConnectionErrorExhaustsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	c := testClient(url, 1)
	_, err := c.doRequest(context.Background(), http.MethodGet, url, nil)
	require.Error(t, err)

	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestNonRetryableStatusFailsImmediately(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad jql"))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	_, err := c.doRequest(context.Background(), http.MethodGet, srv.URL, nil)
	require.Error(t, err)

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "bad jql", he.Body)
	assert.Equal(t, 1, attempts, "4xx errors must not be retried")
}

func TestResponseClassification(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ResponseKind
	}{
		{"json object", `{"key":"PROJ-1"}`, ResponseJSON},
		{"json array", `[1,2,3]`, ResponseJSON},
		{"empty body", "", ResponseEmpty},
		{"whitespace body", "  \n", ResponseEmpty},
		{"html error page", "<html>maintenance</html>", ResponseRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := testClient(srv.URL, 0)
			resp, err := c.doRequest(context.Background(), http.MethodGet, srv.URL, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Kind)
		})
	}
}

func TestFindBoardNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isLast":true,"values":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	_, err := c.FindBoard(context.Background(), "PROJ")
	require.Error(t, err)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "board", nf.Kind)
	assert.Contains(t, err.Error(), "no board found")
}

func TestFindBoardFirstWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isLast":true,"values":[{"id":7,"name":"One"},{"id":9,"name":"Two"}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	board, err := c.FindBoard(context.Background(), "PROJ")
	require.NoError(t, err)
	assert.Equal(t, 7, board.ID)
}

func TestSearchOpenIssuesJQL(t *testing.T) {
	var gotJQL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotJQL = r.URL.Query().Get("jql")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total":0,"issues":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	_, err := c.SearchOpenIssues(context.Background(), "PROJ", `Deploy "X" \ friends`)
	require.NoError(t, err)

	assert.Contains(t, gotJQL, `project = "PROJ"`)
	assert.Contains(t, gotJQL, `summary ~ "Deploy \"X\" \\ friends"`)
	assert.Contains(t, gotJQL, "statusCategory != Done")
}

func TestQuoteJQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", `"plain"`},
		{`has "quotes"`, `"has \"quotes\""`},
		{`back\slash`, `"back\\slash"`},
		{"", `""`},
	}
	for _, tt := range tests {
		if got := QuoteJQL(tt.in); got != tt.want {
			t.Errorf("QuoteJQL(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
