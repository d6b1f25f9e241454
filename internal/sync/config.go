package sync

import (
	"fmt"
)

// Config carries every input for one synchronization run. It is assembled
// once by the caller and passed by value; no component reads ambient state.
type Config struct {
	// Connection.
	BaseURL  string
	Email    string
	APIToken string

	// Target.
	ProjectKey  string
	Summary     string
	Description string

	// BoardID selects the board directly; 0 means resolve the first board
	// that matches ProjectKey.
	BoardID int

	// SprintName names the sprint new and updated issues are assigned to.
	// Empty means the board has no sprint concept (continuous flow) and
	// all sprint handling is skipped.
	SprintName string

	// MaxRetries is the per-call transport retry budget.
	MaxRetries int

	// APIVersion selects the REST API generation: 2 sends plain-text
	// descriptions, 3 sends ADF documents.
	APIVersion int

	// DryRun computes and reports the decision without writing to Jira.
	DryRun bool
}

// Validate checks that the required inputs are present and fills defaults.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("jira URL not configured")
	case c.Email == "":
		return fmt.Errorf("jira email not configured")
	case c.APIToken == "":
		return fmt.Errorf("jira API token not configured")
	case c.ProjectKey == "":
		return fmt.Errorf("jira project key not configured")
	case c.Summary == "":
		return fmt.Errorf("issue summary not configured")
	}

	// A zero budget is valid and means no retries.
	if c.MaxRetries < 0 {
		return fmt.Errorf("retry count must be >= 0, got %d", c.MaxRetries)
	}

	switch c.APIVersion {
	case 0:
		c.APIVersion = 3
	case 2, 3:
	default:
		return fmt.Errorf("unsupported API version %d (want 2 or 3)", c.APIVersion)
	}

	return nil
}
