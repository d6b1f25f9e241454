// Package jira provides the Jira REST client the sync engine rides on:
// authenticated transport with retry/backoff, board and sprint resolution,
// JQL search, and issue create/update.
package jira

import (
	"time"
)

// API constants
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3

	// RetryBaseDelay is the initial backoff delay; it doubles on each retry.
	RetryBaseDelay = time.Second

	MaxPageSize = 50
)

// Sprint lifecycle states as reported by the agile API.
const (
	SprintStateFuture = "future"
	SprintStateActive = "active"
	SprintStateClosed = "closed"
)

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"` // e.g., "PROJ-123"
	Self   string `json:"self"`
	Fields Fields `json:"fields"`
}

// Fields contains the issue field values this system reads.
type Fields struct {
	Summary     string      `json:"summary"`
	Description interface{} `json:"description"` // Can be string or ADF doc
	Status      *Status     `json:"status"`
}

// Status represents a Jira workflow status.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Board represents a Jira agile board.
type Board struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "scrum" or "kanban"
}

// Sprint represents a sprint on a scrum board.
type Sprint struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"` // future, active, closed
}

// SearchResponse is the response from the JQL search endpoint.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// BoardsResponse is the paged response from the board list endpoint.
type BoardsResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	IsLast     bool    `json:"isLast"`
	Values     []Board `json:"values"`
}

// SprintsResponse is the paged response from the board sprint list endpoint.
type SprintsResponse struct {
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	IsLast     bool     `json:"isLast"`
	Values     []Sprint `json:"values"`
}

// CreateIssueRequest is the request body for creating an issue.
type CreateIssueRequest struct {
	Fields CreateFields `json:"fields"`
}

// CreateFields contains fields for creating an issue.
type CreateFields struct {
	Project     ProjectRef  `json:"project"`
	Summary     string      `json:"summary"`
	Description interface{} `json:"description,omitempty"`
	IssueType   TypeRef     `json:"issuetype"`
}

// ProjectRef is a reference to a project.
type ProjectRef struct {
	Key string `json:"key"`
}

// TypeRef is a reference by ID or name.
type TypeRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// CreateIssueResponse is the response from creating an issue.
type CreateIssueResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// UpdateIssueRequest is the request body for updating an issue.
type UpdateIssueRequest struct {
	Fields map[string]interface{} `json:"fields"`
}

// ADFDocument represents an Atlassian Document Format document.
type ADFDocument struct {
	Version int       `json:"version"`
	Type    string    `json:"type"`
	Content []ADFNode `json:"content"`
}

// ADFNode represents a node in an ADF document.
type ADFNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []ADFNode `json:"content,omitempty"`
}
