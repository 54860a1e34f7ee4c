// Package model defines the shared domain types for the veritest pipeline.
package model

// Mode selects what the pipeline produces.
type Mode string

const (
	// ModeGenerate synthesizes an implementation and its tests from a
	// natural-language requirement.
	ModeGenerate Mode = "GENERATE"
	// ModeTest synthesizes tests for existing code.
	ModeTest Mode = "TEST"
)

// Valid reports whether the mode is one of the recognized modes.
func (m Mode) Valid() bool {
	return m == ModeGenerate || m == ModeTest
}

// Stage is a state of the pipeline state machine.
type Stage string

const (
	StageIntake            Stage = "INTAKE"
	StageGenerateCandidate Stage = "GENERATE_CANDIDATE"
	StageExecute           Stage = "EXECUTE"
	StageClassify          Stage = "CLASSIFY"
	StageDone              Stage = "DONE"
)

// Status is the terminal status carried by the DONE stage. A session that has
// not reached DONE has an empty status.
type Status string

const (
	StatusSuccess               Status = "SUCCESS"
	StatusCodeBug               Status = "CODE_BUG"
	StatusRequirementsAmbiguity Status = "REQUIREMENTS_AMBIGUITY"
	StatusStuck                 Status = "STUCK"
	StatusMaxIterations         Status = "MAX_ITERATIONS_EXCEEDED"
	StatusError                 Status = "ERROR"
)

// Input is the original caller-supplied input for a session. Requirement holds
// the requirement text in GENERATE mode or the source code in TEST mode.
type Input struct {
	Requirement string `json:"requirement"`
	Function    string `json:"function,omitempty"`
}

// Empty reports whether the input carries no usable text.
func (in Input) Empty() bool {
	return len(in.Requirement) == 0
}

// Artifact is the candidate under evaluation: generated implementation code
// plus the test suite exercising it. In TEST mode Implementation holds the
// caller's original function so it can be hand-edited before a resume.
type Artifact struct {
	Implementation string `json:"implementation"`
	Tests          string `json:"tests"`
}

// Empty reports whether no candidate has been generated yet.
func (a Artifact) Empty() bool {
	return a.Implementation == "" && a.Tests == ""
}

// SandboxResult is the immutable outcome of one isolated execution.
type SandboxResult struct {
	Passed       int      `json:"passed"`
	Failed       int      `json:"failed"`
	FailingCases []string `json:"failing_cases,omitempty"`
	Output       string   `json:"output,omitempty"`
	// ExecError is set when the sandbox itself failed (timeout, missing
	// image, container start failure) as opposed to tests failing.
	ExecError string `json:"exec_error,omitempty"`
}

// AllPassed reports whether the run executed cleanly with zero failures.
func (r SandboxResult) AllPassed() bool {
	return r.ExecError == "" && r.Failed == 0 && r.Passed > 0
}

// ClassificationKind is the closed set of failure root causes.
type ClassificationKind string

const (
	KindCodeBug               ClassificationKind = "CODE_BUG"
	KindTestBug               ClassificationKind = "TEST_BUG"
	KindRequirementsAmbiguity ClassificationKind = "REQUIREMENTS_AMBIGUITY"
	KindUnknown               ClassificationKind = "UNKNOWN"
)

// Valid reports whether the kind is a member of the closed set.
func (k ClassificationKind) Valid() bool {
	switch k {
	case KindCodeBug, KindTestBug, KindRequirementsAmbiguity, KindUnknown:
		return true
	}
	return false
}

// SuggestedFix is an optional structured fix attached to a classification.
type SuggestedFix struct {
	Location  string `json:"location,omitempty"`
	Current   string `json:"current,omitempty"`
	Suggested string `json:"suggested,omitempty"`
}

// Classification is the normalized output of failure analysis.
type Classification struct {
	Kind       ClassificationKind `json:"kind"`
	Confidence int                `json:"confidence"`
	Rationale  string             `json:"rationale,omitempty"`
	Fix        *SuggestedFix      `json:"fix,omitempty"`
}
