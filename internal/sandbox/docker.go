package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/veritest/veritest/internal/model"
)

// DefaultImage is the container image used for test execution.
const DefaultImage = "veritest-runner:latest"

// DockerExecutor runs the candidate inside a disposable docker container with
// no network access and a single mounted work directory.
type DockerExecutor struct {
	Image  string
	Binary string
}

// NewDockerExecutor creates an executor for the given image. An empty image
// selects DefaultImage.
func NewDockerExecutor(image string) *DockerExecutor {
	if image == "" {
		image = DefaultImage
	}
	return &DockerExecutor{Image: image, Binary: "docker"}
}

// Run executes the artifact's test suite in a fresh container. The container
// and the work directory are torn down on every exit path, including timeout
// and caller cancellation.
func (e *DockerExecutor) Run(ctx context.Context, artifact model.Artifact, timeout time.Duration) (model.SandboxResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	workDir, err := os.MkdirTemp("", "veritest-sandbox-*")
	if err != nil {
		return execFailure(fmt.Sprintf("create sandbox work dir: %v", err)), nil
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", workDir).Msg("failed to remove sandbox work dir")
		}
	}()

	testPath := filepath.Join(workDir, TestFileName)
	if err := os.WriteFile(testPath, []byte(MergeArtifact(artifact)), 0o644); err != nil {
		return execFailure(fmt.Sprintf("write test file: %v", err)), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	containerName := "veritest-" + uuid.NewString()
	args := []string{
		"run", "--rm",
		"--name", containerName,
		"--network", "none",
		"--memory", "512m",
		"--cpus", "1",
		"--user", "1000:1000",
		"-v", workDir + ":/work",
		"-w", "/work",
		e.Image,
		"pytest", "-v", "--tb=short", TestFileName,
	}

	started := time.Now()
	cmd := exec.CommandContext(runCtx, e.Binary, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	runErr := cmd.Run()
	// The docker client may have been killed before the daemon reaped the
	// container; force removal so no environment leaks.
	defer e.forceRemove(containerName)

	output := buf.String()
	log.Debug().
		Str("container", containerName).
		Dur("duration", time.Since(started)).
		Int("output_bytes", len(output)).
		Msg("sandbox run finished")

	if runCtx.Err() != nil {
		return execFailure(fmt.Sprintf("sandbox timed out after %s", timeout)), nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// docker binary missing or not startable.
			return execFailure(fmt.Sprintf("start sandbox: %v", runErr)), nil
		}
		if code := exitErr.ExitCode(); dockerInfraExit(code) {
			return execFailure(fmt.Sprintf("sandbox container failed (exit %d): %s", code, tail(output, 512))), nil
		}
	}

	result := ParsePytestOutput(output)
	if result.Passed == 0 && result.Failed == 0 {
		// pytest produced nothing parseable: collection error, syntax
		// error in the candidate, or a broken image. Fail closed.
		return execFailure("sandbox produced no test results: " + tail(output, 512)), nil
	}
	return result, nil
}

func (e *DockerExecutor) forceRemove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, e.Binary, "rm", "-f", name).CombinedOutput()
	if err != nil {
		// "No such container" is the common, expected case after --rm.
		log.Debug().Str("container", name).Str("output", tail(string(out), 128)).Msg("sandbox container cleanup")
	}
}

// dockerInfraExit reports whether the docker CLI exit code indicates an
// infrastructure failure rather than a pytest failure (pytest exits 1 on
// failing tests, 2-5 on usage or collection errors handled by output parsing).
func dockerInfraExit(code int) bool {
	return code == 125 || code == 126 || code == 127
}

func execFailure(msg string) model.SandboxResult {
	return model.SandboxResult{ExecError: msg}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
