// Package sandbox executes untrusted generated code and its test suite in an
// isolated environment and reports structured results.
package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/veritest/veritest/internal/model"
)

// TestFileName is the file the merged candidate is written to inside the
// sandbox work directory.
const TestFileName = "test_veritest.py"

// DefaultTimeout bounds a single sandbox run.
const DefaultTimeout = 60 * time.Second

// Executor runs a candidate artifact in isolation. Implementations must fail
// closed: a run that cannot start, exceeds the timeout, or exhausts resources
// reports an execution-level error in the result, never a silent zero-pass.
type Executor interface {
	Run(ctx context.Context, artifact model.Artifact, timeout time.Duration) (model.SandboxResult, error)
}

// MergeArtifact produces the single test file content: the implementation
// followed by the test suite. The implementation is embedded rather than
// imported so the sandbox never needs access to anything outside its work
// directory.
func MergeArtifact(artifact model.Artifact) string {
	impl := strings.TrimSpace(artifact.Implementation)
	tests := strings.TrimSpace(artifact.Tests)
	if impl == "" {
		return tests + "\n"
	}
	return impl + "\n\n\n" + tests + "\n"
}
