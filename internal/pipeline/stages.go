package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/model"
	"github.com/veritest/veritest/internal/stuckloop"
)

// advanceIntake records the accepted input and hands off to generation. The
// transition is persisted before any collaborator is invoked so a crash here
// costs nothing to replay.
func (o *Orchestrator) advanceIntake(ctx context.Context, cp *checkpoint.Checkpoint) error {
	cp.Stage = model.StageGenerateCandidate
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}
	o.emit(ctx, cp, "intake recorded")
	return nil
}

// advanceGenerate produces the candidate artifact. Scenario analysis and
// candidate generation are separate billable calls, so the checkpoint is
// saved between them; a resumed session with a cached artifact skips both.
func (o *Orchestrator) advanceGenerate(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp.Artifact.Empty() {
		if strings.TrimSpace(cp.Scenarios) == "" {
			scenarios, err := o.reasoner.AnalyzeRequirements(ctx, cp.Input, cp.Mode)
			if err != nil {
				return o.finish(ctx, cp, model.StatusError, fmt.Sprintf("requirements analysis failed: %v", err))
			}
			cp.Scenarios = scenarios
			if err := o.store.Save(ctx, cp); err != nil {
				return err
			}
			o.emit(ctx, cp, "requirements analyzed")
		}

		artifact, err := o.reasoner.GenerateCandidate(ctx, cp.Scenarios, cp.Input, cp.Mode)
		if err != nil {
			return o.finish(ctx, cp, model.StatusError, fmt.Sprintf("candidate generation failed: %v", err))
		}
		cp.Artifact = artifact
	}

	cp.Stage = model.StageExecute
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}
	o.emit(ctx, cp, "candidate ready")
	return nil
}

// advanceExecute runs the candidate in the sandbox. Infrastructure failures
// (never test failures) get one retry before the session halts with ERROR.
func (o *Orchestrator) advanceExecute(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp.Iteration == 0 {
		cp.Iteration = 1
	}

	result, err := o.executor.Run(ctx, cp.Artifact, o.sandboxTimeout)
	if err != nil {
		return o.finish(ctx, cp, model.StatusError, fmt.Sprintf("sandbox execution failed: %v", err))
	}
	cp.LastResult = &result

	if result.ExecError != "" {
		if cp.SandboxRetries < 1 {
			cp.SandboxRetries++
			if err := o.store.Save(ctx, cp); err != nil {
				return err
			}
			o.emit(ctx, cp, fmt.Sprintf("sandbox failure, retrying: %s", result.ExecError))
			return nil
		}
		return o.finish(ctx, cp, model.StatusError, fmt.Sprintf("sandbox failed twice: %s", result.ExecError))
	}
	cp.SandboxRetries = 0

	if result.AllPassed() {
		return o.finish(ctx, cp, model.StatusSuccess,
			fmt.Sprintf("all %d tests passed on iteration %d", result.Passed, cp.Iteration))
	}

	cp.SignatureHistory = append(cp.SignatureHistory, stuckloop.Signature(result.FailingCases))
	cp.Stage = model.StageClassify
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}
	o.emit(ctx, cp, fmt.Sprintf("%d of %d tests failed on iteration %d",
		result.Failed, result.Passed+result.Failed, cp.Iteration))
	return nil
}

// advanceClassify asks the reasoning service to attribute the failure and
// routes on the answer. CODE_BUG and REQUIREMENTS_AMBIGUITY halt for external
// action with the artifact untouched. TEST_BUG loops back through test
// regeneration, bounded by the stuck-loop detector and the iteration cap.
// UNKNOWN is tolerated once, treated as TEST_BUG; a second UNKNOWN is ERROR.
func (o *Orchestrator) advanceClassify(ctx context.Context, cp *checkpoint.Checkpoint) error {
	classification, err := o.reasoner.Classify(ctx, *cp.LastResult, cp.Artifact, cp.Input)
	if err != nil {
		classification = model.Classification{
			Kind:      model.KindUnknown,
			Rationale: fmt.Sprintf("classifier error: %v", err),
		}
	}
	cp.LastClassification = &classification

	kind := classification.Kind
	if kind == model.KindUnknown {
		if cp.UnknownRetries >= 1 {
			return o.finish(ctx, cp, model.StatusError,
				fmt.Sprintf("failure could not be classified after retry: %s", classification.Rationale))
		}
		cp.UnknownRetries++
		kind = model.KindTestBug
	}

	switch kind {
	case model.KindCodeBug:
		return o.finish(ctx, cp, model.StatusCodeBug,
			fmt.Sprintf("implementation bug (confidence %d): %s", classification.Confidence, classification.Rationale))
	case model.KindRequirementsAmbiguity:
		return o.finish(ctx, cp, model.StatusRequirementsAmbiguity,
			fmt.Sprintf("requirement is ambiguous (confidence %d): %s", classification.Confidence, classification.Rationale))
	}

	// Loop-back path. The detector is consulted before any retry and wins
	// over the classification.
	if stuckloop.IsStuck(cp.SignatureHistory) {
		return o.finish(ctx, cp, model.StatusStuck,
			fmt.Sprintf("no progress after %d iteration(s), same failures keep recurring", cp.Iteration))
	}
	if cp.Iteration+1 > cp.MaxIterations {
		return o.finish(ctx, cp, model.StatusMaxIterations,
			fmt.Sprintf("iteration limit of %d reached without a passing suite", cp.MaxIterations))
	}

	// Persist the classification before the next billable call.
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}
	o.emit(ctx, cp, fmt.Sprintf("classified as %s (confidence %d), regenerating tests", classification.Kind, classification.Confidence))

	tests, err := o.reasoner.RegenerateTests(ctx, cp.Scenarios, cp.Input, cp.Artifact, *cp.LastResult)
	if err != nil {
		return o.finish(ctx, cp, model.StatusError, fmt.Sprintf("test regeneration failed: %v", err))
	}
	cp.Artifact.Tests = tests
	cp.Iteration++
	cp.Stage = model.StageExecute
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}
	o.emit(ctx, cp, fmt.Sprintf("tests regenerated, starting iteration %d", cp.Iteration))
	return nil
}
