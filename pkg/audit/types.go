package audit

import (
	"time"
)

// Result is the outcome recorded for an action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Entry is one append-only audit record
type Entry struct {
	ID             int64                  `json:"id"`
	ActorID        *int64                 `json:"actor_id,omitempty"`
	OrganizationID *int64                 `json:"organization_id,omitempty"`
	Action         string                 `json:"action"`
	Resource       string                 `json:"resource"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
	Result         Result                 `json:"result"`
	Reason         string                 `json:"reason,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Filter selects audit entries. Zero fields are ignored.
type Filter struct {
	ActorID        *int64
	OrganizationID *int64
	Action         string
	Result         Result
	StartTime      *time.Time
	EndTime        *time.Time
	// BeforeID pages backwards through the log by id
	BeforeID int64
	Limit    int
	Offset   int
}

// DefaultQueryLimit caps queries that do not set a limit
const DefaultQueryLimit = 100
