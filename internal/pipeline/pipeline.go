// Package pipeline implements the orchestrator state machine that drives a
// session from intake to a terminal status: generate a candidate, execute it
// in the sandbox, classify failures, and retry or halt.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/logging"
	"github.com/veritest/veritest/internal/model"
	"github.com/veritest/veritest/internal/reasoning"
	"github.com/veritest/veritest/internal/sandbox"
)

var (
	// ErrInvalidInput indicates empty input or an unrecognized mode.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotResumable indicates the session's checkpoint does not permit
	// resuming (for example a session that already succeeded).
	ErrNotResumable = errors.New("session not resumable")
)

// DefaultMaxIterations bounds the retry loop when the caller does not supply
// a limit.
const DefaultMaxIterations = 5

// Orchestrator sequences the pipeline stages for sessions. All state lives in
// the checkpoint; the orchestrator itself is stateless across calls and safe
// for concurrent sessions.
type Orchestrator struct {
	store          *checkpoint.Store
	executor       sandbox.Executor
	reasoner       reasoning.Service
	broker         *events.Broker
	sandboxTimeout time.Duration
}

// New constructs an orchestrator.
func New(store *checkpoint.Store, executor sandbox.Executor, reasoner reasoning.Service, broker *events.Broker, sandboxTimeout time.Duration) *Orchestrator {
	if sandboxTimeout <= 0 {
		sandboxTimeout = sandbox.DefaultTimeout
	}
	return &Orchestrator{
		store:          store,
		executor:       executor,
		reasoner:       reasoner,
		broker:         broker,
		sandboxTimeout: sandboxTimeout,
	}
}

// TerminalResult summarizes a finished (or halted) session.
type TerminalResult struct {
	SessionID      string
	Status         model.Status
	Message        string
	Iterations     int
	Artifact       model.Artifact
	Result         *model.SandboxResult
	Classification *model.Classification
}

// ValidateInput checks that the input and mode form a startable session.
func ValidateInput(input model.Input, mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("mode %q: %w", mode, ErrInvalidInput)
	}
	if strings.TrimSpace(input.Requirement) == "" {
		return fmt.Errorf("requirement is empty: %w", ErrInvalidInput)
	}
	if mode == model.ModeTest && strings.TrimSpace(input.Function) == "" {
		return fmt.Errorf("function body is required in %s mode: %w", mode, ErrInvalidInput)
	}
	return nil
}

// Resumable reports whether a checkpoint permits re-entering the loop. A
// session is resumable while in flight, or when it halted for external
// action on the code or the requirement.
func Resumable(cp *checkpoint.Checkpoint) bool {
	if !cp.Terminal() {
		return true
	}
	return cp.Status == model.StatusCodeBug || cp.Status == model.StatusRequirementsAmbiguity
}

// Start validates the input, creates a fresh session checkpoint at INTAKE,
// and drives it to a terminal status.
func (o *Orchestrator) Start(ctx context.Context, input model.Input, mode model.Mode, maxIterations int) (TerminalResult, error) {
	return o.StartSession(ctx, uuid.NewString(), input, mode, maxIterations)
}

// StartSession is Start with a caller-chosen session ID, so callers that run
// the pipeline in the background can hand the ID out before the session
// finishes.
func (o *Orchestrator) StartSession(ctx context.Context, sessionID string, input model.Input, mode model.Mode, maxIterations int) (TerminalResult, error) {
	if err := ValidateInput(input, mode); err != nil {
		return TerminalResult{}, err
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	release, err := o.store.Acquire(sessionID)
	if err != nil {
		return TerminalResult{}, err
	}
	defer release()

	cp := &checkpoint.Checkpoint{
		SessionID:     sessionID,
		Mode:          mode,
		Stage:         model.StageIntake,
		MaxIterations: maxIterations,
		Input:         input,
	}
	if err := o.store.Save(ctx, cp); err != nil {
		return TerminalResult{}, err
	}
	o.emit(ctx, cp, fmt.Sprintf("session started in %s mode", mode))

	return o.loop(ctx, cp)
}

// Resume loads the session's checkpoint and re-enters the loop, skipping
// completed stages. The cached candidate artifact is reused, optionally
// replaced by an externally corrected one, so the generation collaborator is
// never re-invoked for work already paid for.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, updated *model.Artifact) (TerminalResult, error) {
	// Acquire before loading: a snapshot read while another goroutine still
	// owns the session could be stale by the time it is written back.
	release, err := o.store.Acquire(sessionID)
	if err != nil {
		return TerminalResult{}, err
	}
	defer release()

	cp, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return TerminalResult{}, err
	}

	if !Resumable(cp) {
		return TerminalResult{}, fmt.Errorf("session %s finished with status %s: %w", sessionID, cp.Status, ErrNotResumable)
	}

	if updated != nil {
		cp.Artifact = *updated
	}
	cp.Status = ""
	cp.Message = ""
	if cp.Artifact.Empty() {
		cp.Stage = model.StageGenerateCandidate
	} else {
		cp.Stage = model.StageExecute
	}
	if err := o.store.Save(ctx, cp); err != nil {
		return TerminalResult{}, err
	}
	o.emit(ctx, cp, "session resumed")

	return o.loop(ctx, cp)
}

// loop advances the checkpoint one stage transition at a time until the
// session is terminal. Cancellation is honored at stage boundaries only; the
// checkpoint stays at its last persisted stage and remains resumable.
func (o *Orchestrator) loop(ctx context.Context, cp *checkpoint.Checkpoint) (res TerminalResult, err error) {
	logger := logging.Session(cp.SessionID)
	startedAt := time.Now()
	defer func() {
		event := logger.Info().
			Str("status", string(cp.Status)).
			Int("iterations", cp.Iteration).
			Dur("duration", time.Since(startedAt))
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("session finished")
	}()

	for !cp.Terminal() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TerminalResult{}, fmt.Errorf("session %s canceled at stage %s: %w", cp.SessionID, cp.Stage, ctxErr)
		}

		logger.Debug().Str("stage", string(cp.Stage)).Int("iteration", cp.Iteration).Msg("advancing stage")
		switch cp.Stage {
		case model.StageIntake:
			err = o.advanceIntake(ctx, cp)
		case model.StageGenerateCandidate:
			err = o.advanceGenerate(ctx, cp)
		case model.StageExecute:
			err = o.advanceExecute(ctx, cp)
		case model.StageClassify:
			err = o.advanceClassify(ctx, cp)
		default:
			err = fmt.Errorf("session %s: unknown stage %q", cp.SessionID, cp.Stage)
		}
		if err != nil {
			return TerminalResult{}, err
		}
	}

	return TerminalResult{
		SessionID:      cp.SessionID,
		Status:         cp.Status,
		Message:        cp.Message,
		Iterations:     cp.Iteration,
		Artifact:       cp.Artifact,
		Result:         cp.LastResult,
		Classification: cp.LastClassification,
	}, nil
}

// finish moves the session to DONE with the given terminal status. The
// checkpoint write happens before the event so a crash cannot lose the
// terminal state.
func (o *Orchestrator) finish(ctx context.Context, cp *checkpoint.Checkpoint, status model.Status, message string) error {
	cp.Stage = model.StageDone
	cp.Status = status
	cp.Message = message
	if err := o.store.Save(ctx, cp); err != nil {
		return err
	}
	o.emit(ctx, cp, message)
	return nil
}

// emit appends one progress event to the durable log and fans it out to live
// subscribers under the assigned sequence number. Emission is best-effort: a
// slow subscriber or a failed event write never blocks or fails the
// transition.
func (o *Orchestrator) emit(ctx context.Context, cp *checkpoint.Checkpoint, message string) {
	seq, err := o.store.AppendEvent(ctx, cp.SessionID, cp.Stage, message)
	if err != nil {
		log.Warn().Err(err).Str("session_id", cp.SessionID).Msg("failed to persist progress event")
		return
	}
	if o.broker != nil {
		o.broker.Publish(cp.SessionID, seq, cp.Stage, message)
	}
}
