// Package checkpoint persists pipeline session state so a run can resume
// without re-incurring completed collaborator work.
package checkpoint

import (
	"time"

	"github.com/veritest/veritest/internal/model"
	"github.com/veritest/veritest/internal/stuckloop"
)

// Checkpoint is the durable snapshot of a session's progress. It is mutated
// only by the orchestrator at stage boundaries and written with an atomic
// replace, so loading one always reproduces the next action the live run
// would have taken.
type Checkpoint struct {
	SessionID     string       `json:"session_id"`
	Mode          model.Mode   `json:"mode"`
	Stage         model.Stage  `json:"stage"`
	Status        model.Status `json:"status,omitempty"`
	Message       string       `json:"message,omitempty"`
	Iteration     int          `json:"iteration"`
	MaxIterations int          `json:"max_iterations"`

	// UnknownRetries counts iterations spent on UNKNOWN or failed
	// classifications; one is tolerated before escalating to ERROR.
	UnknownRetries int `json:"unknown_retries"`
	// SandboxRetries counts execution-level sandbox failures; one is
	// tolerated before escalating to ERROR.
	SandboxRetries int `json:"sandbox_retries"`

	Input model.Input `json:"input"`
	// Scenarios caches the requirements analysis so resume never repeats it.
	Scenarios string `json:"scenarios,omitempty"`
	// Artifact caches the generated candidate so re-entering the generation
	// stage on resume never re-invokes the collaborator.
	Artifact model.Artifact `json:"artifact"`

	LastResult         *model.SandboxResult         `json:"last_result,omitempty"`
	LastClassification *model.Classification        `json:"last_classification,omitempty"`
	SignatureHistory   []stuckloop.FailureSignature `json:"signature_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the session has reached its final stage.
func (c *Checkpoint) Terminal() bool {
	return c.Stage == model.StageDone
}

// Summary is the listing row for a stored session.
type Summary struct {
	SessionID string
	Mode      model.Mode
	Stage     model.Stage
	Status    model.Status
	Iteration int
	CreatedAt time.Time
	UpdatedAt time.Time
}
