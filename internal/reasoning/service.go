package reasoning

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/veritest/veritest/internal/model"
)

// Service is the collaborator boundary consumed by the pipeline. Every call
// is a single, atomic, possibly expensive operation; the pipeline caches the
// outputs in its checkpoint and never repeats a completed call on resume.
type Service interface {
	// AnalyzeRequirements extracts a structured list of test scenarios
	// from the requirement or the existing function.
	AnalyzeRequirements(ctx context.Context, input model.Input, mode model.Mode) (string, error)
	// GenerateCandidate synthesizes the candidate artifact: implementation
	// plus tests in GENERATE mode, tests for the supplied code in TEST mode.
	GenerateCandidate(ctx context.Context, scenarios string, input model.Input, mode model.Mode) (model.Artifact, error)
	// RegenerateTests rewrites only the test part of the artifact after a
	// TEST_BUG classification, keeping the implementation untouched.
	RegenerateTests(ctx context.Context, scenarios string, input model.Input, artifact model.Artifact, result model.SandboxResult) (string, error)
	// Classify determines the root cause of a failing sandbox run.
	Classify(ctx context.Context, result model.SandboxResult, artifact model.Artifact, input model.Input) (model.Classification, error)
}

// Adapter implements Service on top of a Completer.
type Adapter struct {
	completer Completer
}

// NewAdapter wraps the completer in the typed collaborator operations.
func NewAdapter(completer Completer) *Adapter {
	return &Adapter{completer: completer}
}

// AnalyzeRequirements implements Service.
func (a *Adapter) AnalyzeRequirements(ctx context.Context, input model.Input, mode model.Mode) (string, error) {
	out, err := a.completer.Complete(ctx, analyzeInstructions(mode), input.Requirement)
	if err != nil {
		return "", fmt.Errorf("analyze requirements: %w", err)
	}
	log.Debug().Int("scenario_bytes", len(out)).Msg("requirements analyzed")
	return out, nil
}

// GenerateCandidate implements Service.
func (a *Adapter) GenerateCandidate(ctx context.Context, scenarios string, input model.Input, mode model.Mode) (model.Artifact, error) {
	out, err := a.completer.Complete(ctx, generateInstructions(mode), generatePrompt(scenarios, input, mode))
	if err != nil {
		return model.Artifact{}, fmt.Errorf("generate candidate: %w", err)
	}
	artifact, err := ParseCandidate(out, mode, input)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("generate candidate: %w", err)
	}
	return artifact, nil
}

// RegenerateTests implements Service.
func (a *Adapter) RegenerateTests(ctx context.Context, scenarios string, input model.Input, artifact model.Artifact, result model.SandboxResult) (string, error) {
	out, err := a.completer.Complete(ctx, regenerateInstructions(), regeneratePrompt(scenarios, input, artifact, result))
	if err != nil {
		return "", fmt.Errorf("regenerate tests: %w", err)
	}
	tests := StripCodeFences(out)
	if tests == "" {
		return "", fmt.Errorf("regenerate tests: empty test suite in response")
	}
	return tests, nil
}

// Classify implements Service. The collaborator's free-form reply is
// normalized into the closed classification set; a malformed reply yields
// UNKNOWN, never an error that would leak an open value into branching.
func (a *Adapter) Classify(ctx context.Context, result model.SandboxResult, artifact model.Artifact, input model.Input) (model.Classification, error) {
	out, err := a.completer.Complete(ctx, classifyInstructions(), classifyPrompt(result, artifact, input))
	if err != nil {
		return model.Classification{}, fmt.Errorf("classify failure: %w", err)
	}
	return ParseClassification(out), nil
}
