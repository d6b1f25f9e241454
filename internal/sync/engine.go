// Package sync implements the idempotent synchronization engine: given a
// summary and description, it decides whether to create a tracking issue,
// update the existing one, fork a new one, or do nothing, and sequences the
// sprint-assignment calls around that decision.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jirasync/jirasync/internal/jira"
	"github.com/jirasync/jirasync/internal/reconcile"
)

// Action is the decision the engine reached for a run.
type Action int

const (
	// ActionNone means the tracker already matches the requested content.
	ActionNone Action = iota
	// ActionCreate means no open issue matched the summary.
	ActionCreate
	// ActionUpdate means the existing issue's description was overwritten.
	ActionUpdate
	// ActionFork means a second issue was created carrying only the new
	// lines, because the original sits in an active sprint.
	ActionFork
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "no-op"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionFork:
		return "fork"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Result reports what a run did and which issue now carries the content.
type Result struct {
	Action   Action
	IssueKey string
}

// Engine orchestrates one synchronization run. All remote calls are issued
// sequentially; the only state is the immutable config and client.
type Engine struct {
	client *jira.Client
	cfg    Config
	log    *slog.Logger

	// now is the clock used to stamp trailers; replaced in tests.
	now func() time.Time
}

// New creates an engine for the given config. The config must already be
// validated.
func New(cfg Config, logger *slog.Logger) *Engine {
	client := jira.NewClient(cfg.BaseURL, cfg.Email, cfg.APIToken)
	client.APIVersion = cfg.APIVersion
	client.MaxRetries = cfg.MaxRetries

	return &Engine{
		client: client,
		cfg:    cfg,
		log:    logger,
		now:    time.Now,
	}
}

// Client returns the underlying Jira client for advanced operations.
func (e *Engine) Client() *jira.Client {
	return e.client
}

// Run executes the synchronization state machine and returns the key of the
// issue that carries the content. Partial writes already committed to Jira
// are not rolled back on failure: a created issue whose sprint assignment
// fails stays behind unassigned.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	issues, err := e.client.SearchOpenIssues(ctx, e.cfg.ProjectKey, e.cfg.Summary)
	if err != nil {
		return nil, fmt.Errorf("search for existing issue: %w", err)
	}

	// Resolve the board and the assignment target up front so a
	// misconfigured sprint fails before any write.
	var target *jira.Sprint
	boardID := e.cfg.BoardID
	if e.sprintMode() {
		if boardID == 0 {
			board, err := e.client.FindBoard(ctx, e.cfg.ProjectKey)
			if err != nil {
				return nil, fmt.Errorf("resolve board for project %s: %w", e.cfg.ProjectKey, err)
			}
			boardID = board.ID
			e.log.Info("resolved board", "board", boardID, "project", e.cfg.ProjectKey)
		}

		target, err = e.client.FindSprint(ctx, boardID, e.cfg.SprintName,
			[]string{jira.SprintStateFuture, jira.SprintStateActive})
		if err != nil {
			return nil, fmt.Errorf("resolve sprint %q: %w", e.cfg.SprintName, err)
		}
	}

	if len(issues) == 0 {
		return e.createNew(ctx, target)
	}

	existing := &issues[0]
	if len(issues) > 1 {
		e.log.Warn("multiple open issues match summary, using first",
			"count", len(issues), "key", existing.Key)
	}

	state, err := e.currentSprintState(ctx, boardID, existing.Key)
	if err != nil {
		return nil, fmt.Errorf("determine sprint membership of %s: %w", existing.Key, err)
	}

	switch state {
	case jira.SprintStateActive:
		return e.forkFromActive(ctx, existing, target)
	case jira.SprintStateFuture, "":
		// An issue in no sprint at all is handled like one in a future
		// sprint: its scope is still open for edits.
		return e.updateExisting(ctx, existing, target)
	default:
		e.log.Warn("issue is in a sprint with unexpected state, leaving it untouched",
			"key", existing.Key, "state", state)
		return &Result{Action: ActionNone, IssueKey: existing.Key}, nil
	}
}

// sprintMode reports whether this run assigns issues to a sprint. An empty
// sprint name is the continuous-flow variant: no sprint calls at all.
func (e *Engine) sprintMode() bool {
	return e.cfg.SprintName != ""
}

// currentSprintState finds the state of the sprint the issue currently sits
// in, probing the board's active and future sprints one at a time, first
// match wins. Returns "" when the issue is in none of them. The linear scan
// is fine for the handful of sprints a board carries.
func (e *Engine) currentSprintState(ctx context.Context, boardID int, issueKey string) (string, error) {
	if !e.sprintMode() {
		return "", nil
	}

	sprints, err := e.client.ListSprints(ctx, boardID,
		[]string{jira.SprintStateActive, jira.SprintStateFuture})
	if err != nil {
		return "", err
	}

	for i := range sprints {
		member, err := e.client.SprintContainsIssue(ctx, sprints[i].ID, issueKey)
		if err != nil {
			return "", err
		}
		if member {
			return sprints[i].State, nil
		}
	}
	return "", nil
}

// createNew creates the tracking issue with a stamped description and
// assigns it to the target sprint.
func (e *Engine) createNew(ctx context.Context, target *jira.Sprint) (*Result, error) {
	if e.cfg.DryRun {
		e.log.Info("dry run: would create issue", "summary", e.cfg.Summary)
		return &Result{Action: ActionCreate}, nil
	}

	body := reconcile.WithTrailer(e.cfg.Description, e.now())
	key, err := e.client.CreateIssue(ctx, e.cfg.ProjectKey, e.cfg.Summary, body)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	e.log.Info("created issue", "key", key)

	if err := e.assign(ctx, target, key); err != nil {
		return nil, err
	}
	return &Result{Action: ActionCreate, IssueKey: key}, nil
}

// updateExisting overwrites the issue's description with the full incoming
// content when they differ modulo trailer, then (re)assigns it to the
// target sprint.
func (e *Engine) updateExisting(ctx context.Context, existing *jira.Issue, target *jira.Sprint) (*Result, error) {
	current := jira.DescriptionText(existing.Fields.Description)
	if reconcile.EqualModuloTrailer(current, e.cfg.Description) {
		e.log.Info("description unchanged", "key", existing.Key)
		return &Result{Action: ActionNone, IssueKey: existing.Key}, nil
	}

	if e.cfg.DryRun {
		e.log.Info("dry run: would update issue", "key", existing.Key)
		return &Result{Action: ActionUpdate, IssueKey: existing.Key}, nil
	}

	body := reconcile.WithTrailer(e.cfg.Description, e.now())
	if err := e.client.UpdateDescription(ctx, existing.Key, body); err != nil {
		return nil, fmt.Errorf("update issue %s: %w", existing.Key, err)
	}
	e.log.Info("updated issue", "key", existing.Key)

	if err := e.assign(ctx, target, existing.Key); err != nil {
		return nil, err
	}
	return &Result{Action: ActionUpdate, IssueKey: existing.Key}, nil
}

// forkFromActive creates a second issue carrying only the genuinely new
// lines. The original issue is in an active sprint, and an active sprint's
// scope is not silently altered.
func (e *Engine) forkFromActive(ctx context.Context, existing *jira.Issue, target *jira.Sprint) (*Result, error) {
	current := reconcile.StripTrailer(jira.DescriptionText(existing.Fields.Description))
	delta := reconcile.DiffNewLines(current, reconcile.StripTrailer(e.cfg.Description))
	if delta == "" {
		e.log.Info("no new content for issue in active sprint", "key", existing.Key)
		return &Result{Action: ActionNone, IssueKey: existing.Key}, nil
	}

	if e.cfg.DryRun {
		e.log.Info("dry run: would fork issue", "from", existing.Key)
		return &Result{Action: ActionFork, IssueKey: existing.Key}, nil
	}

	body := reconcile.WithTrailer(delta, e.now())
	key, err := e.client.CreateIssue(ctx, e.cfg.ProjectKey, e.cfg.Summary, body)
	if err != nil {
		return nil, fmt.Errorf("fork issue from %s: %w", existing.Key, err)
	}
	e.log.Info("forked issue", "from", existing.Key, "key", key)

	if err := e.assign(ctx, target, key); err != nil {
		return nil, err
	}
	return &Result{Action: ActionFork, IssueKey: key}, nil
}

// assign moves the issue into the target sprint; a nil target means the run
// is in continuous-flow mode and assignment is skipped.
func (e *Engine) assign(ctx context.Context, target *jira.Sprint, issueKey string) error {
	if target == nil {
		return nil
	}
	if err := e.client.AssignIssueToSprint(ctx, target.ID, issueKey); err != nil {
		return fmt.Errorf("assign %s to sprint %q: %w", issueKey, target.Name, err)
	}
	e.log.Info("assigned issue to sprint", "key", issueKey, "sprint", target.Name)
	return nil
}
