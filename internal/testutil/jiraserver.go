// Package testutil provides a fake Jira server for engine and client tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jirasync/jirasync/internal/jira"
)

// JiraServer is an in-memory Jira that serves the board, sprint, search and
// issue endpoints the sync engine touches, and records every mutation for
// assertions.
type JiraServer struct {
	mu sync.Mutex

	server *httptest.Server

	// Fixture state.
	boards     []jira.Board
	sprints    map[int][]jira.Sprint // board ID -> sprints
	issues     []jira.Issue
	membership map[int][]string // sprint ID -> issue keys
	nextIssue  int

	// Recorded mutations.
	Created     []jira.CreateIssueRequest
	Updated     map[string]jira.UpdateIssueRequest
	Assignments map[int][]string // sprint ID -> assigned issue keys
}

// NewJiraServer starts a fake Jira with empty fixtures.
func NewJiraServer() *JiraServer {
	s := &JiraServer{
		sprints:     make(map[int][]jira.Sprint),
		membership:  make(map[int][]string),
		nextIssue:   100,
		Updated:     make(map[string]jira.UpdateIssueRequest),
		Assignments: make(map[int][]string),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the server's base URL.
func (s *JiraServer) URL() string { return s.server.URL }

// Close shuts the server down.
func (s *JiraServer) Close() { s.server.Close() }

// AddBoard registers a board.
func (s *JiraServer) AddBoard(b jira.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards = append(s.boards, b)
}

// AddSprint registers a sprint on a board.
func (s *JiraServer) AddSprint(boardID int, sp jira.Sprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sprints[boardID] = append(s.sprints[boardID], sp)
}

// AddIssue registers an existing issue, optionally as a member of a sprint
// (sprintID 0 means no sprint).
func (s *JiraServer) AddIssue(issue jira.Issue, sprintID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, issue)
	if sprintID != 0 {
		s.membership[sprintID] = append(s.membership[sprintID], issue.Key)
	}
}

var (
	boardSprintsPattern = regexp.MustCompile(`^/rest/agile/1\.0/board/(\d+)/sprint$`)
	sprintIssuesPattern = regexp.MustCompile(`^/rest/agile/1\.0/sprint/(\d+)/issue$`)
	issuePattern        = regexp.MustCompile(`^/rest/api/[23]/issue/([^/]+)$`)
)

func (s *JiraServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path

	switch {
	case path == "/rest/agile/1.0/board" && r.Method == http.MethodGet:
		s.handleBoards(w, r)
	case boardSprintsPattern.MatchString(path) && r.Method == http.MethodGet:
		id, _ := strconv.Atoi(boardSprintsPattern.FindStringSubmatch(path)[1])
		s.handleBoardSprints(w, r, id)
	case sprintIssuesPattern.MatchString(path) && r.Method == http.MethodGet:
		id, _ := strconv.Atoi(sprintIssuesPattern.FindStringSubmatch(path)[1])
		s.handleSprintIssues(w, id)
	case sprintIssuesPattern.MatchString(path) && r.Method == http.MethodPost:
		id, _ := strconv.Atoi(sprintIssuesPattern.FindStringSubmatch(path)[1])
		s.handleAssign(w, r, id)
	case strings.HasSuffix(path, "/search") && r.Method == http.MethodGet:
		s.handleSearch(w)
	case strings.HasSuffix(path, "/issue") && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case issuePattern.MatchString(path) && r.Method == http.MethodPut:
		s.handleUpdate(w, r, issuePattern.FindStringSubmatch(path)[1])
	case strings.HasSuffix(path, "/myself") && r.Method == http.MethodGet:
		writeJSON(w, map[string]string{"emailAddress": "fake@example.com"})
	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"error": "not found: " + path})
	}
}

func (s *JiraServer) handleBoards(w http.ResponseWriter, r *http.Request) {
	// All fixtures belong to the one project the tests configure, so the
	// projectKeyOrId filter is not re-applied here.
	writeJSON(w, jira.BoardsResponse{
		MaxResults: 50,
		IsLast:     true,
		Values:     s.boards,
	})
}

func (s *JiraServer) handleBoardSprints(w http.ResponseWriter, r *http.Request, boardID int) {
	states := strings.Split(r.URL.Query().Get("state"), ",")
	var out []jira.Sprint
	for _, sp := range s.sprints[boardID] {
		// Sprints in nonstandard states pass every filter, mimicking servers
		// that report states the agile API does not document.
		if !standardState(sp.State) {
			out = append(out, sp)
			continue
		}
		for _, st := range states {
			if sp.State == st {
				out = append(out, sp)
				break
			}
		}
	}
	writeJSON(w, jira.SprintsResponse{MaxResults: 50, IsLast: true, Values: out})
}

func (s *JiraServer) handleSprintIssues(w http.ResponseWriter, sprintID int) {
	var out []jira.Issue
	keys := s.membership[sprintID]
	jqlKeys := make(map[string]bool, len(keys))
	for _, k := range keys {
		jqlKeys[k] = true
	}
	for i := range s.issues {
		if jqlKeys[s.issues[i].Key] {
			out = append(out, s.issues[i])
		}
	}
	writeJSON(w, jira.SearchResponse{Total: len(out), Issues: out})
}

func (s *JiraServer) handleAssign(w http.ResponseWriter, r *http.Request, sprintID int) {
	var body struct {
		Issues []string `json:"issues"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.Assignments[sprintID] = append(s.Assignments[sprintID], body.Issues...)
	s.membership[sprintID] = append(s.membership[sprintID], body.Issues...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *JiraServer) handleSearch(w http.ResponseWriter) {
	writeJSON(w, jira.SearchResponse{
		Total:  len(s.issues),
		Issues: s.issues,
	})
}

func (s *JiraServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req jira.CreateIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.Created = append(s.Created, req)

	s.nextIssue++
	key := fmt.Sprintf("%s-%d", req.Fields.Project.Key, s.nextIssue)

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, jira.CreateIssueResponse{
		ID:  strconv.Itoa(s.nextIssue),
		Key: key,
	})
}

func (s *JiraServer) handleUpdate(w http.ResponseWriter, r *http.Request, key string) {
	var req jira.UpdateIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.Updated[key] = req
	w.WriteHeader(http.StatusNoContent)
}

func standardState(state string) bool {
	switch state {
	case jira.SprintStateFuture, jira.SprintStateActive, jira.SprintStateClosed:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
