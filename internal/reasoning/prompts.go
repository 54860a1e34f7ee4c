package reasoning

import (
	"fmt"
	"strings"

	"github.com/veritest/veritest/internal/model"
)

const (
	implementationMarker = "=== IMPLEMENTATION ==="
	testsMarker          = "=== TESTS ==="
)

func analyzeInstructions(mode model.Mode) string {
	subject := "the requirement below"
	if mode == model.ModeTest {
		subject = "the Python function below"
	}
	return fmt.Sprintf(`You are a senior QA engineer. Analyze %s and produce a numbered
list of concrete test scenarios covering normal cases, boundary values, and
error handling. One scenario per line, no prose before or after the list.`, subject)
}

func generateInstructions(mode model.Mode) string {
	if mode == model.ModeTest {
		return fmt.Sprintf(`You are a senior Python test engineer. Write a pytest suite for the
provided function, covering every scenario listed. Reply with exactly two
sections. After the line %q repeat the function under test verbatim. After the
line %q write only the pytest test functions. No markdown fences, no prose.`,
			implementationMarker, testsMarker)
	}
	return fmt.Sprintf(`You are a senior Python engineer. Implement the requirement and write a
pytest suite proving it, covering every scenario listed. Reply with exactly
two sections. After the line %q write only the implementation. After the line
%q write only the pytest test functions. No markdown fences, no prose.`,
		implementationMarker, testsMarker)
}

func generatePrompt(scenarios string, input model.Input, mode model.Mode) string {
	var b strings.Builder
	if mode == model.ModeTest {
		b.WriteString("Function under test")
		if input.Function != "" {
			fmt.Fprintf(&b, " (target: %s)", input.Function)
		}
		b.WriteString(":\n")
	} else {
		b.WriteString("Requirement:\n")
	}
	b.WriteString(input.Requirement)
	b.WriteString("\n\nTest scenarios:\n")
	b.WriteString(scenarios)
	return b.String()
}

func regenerateInstructions() string {
	return `You are a senior Python test engineer. The previous test suite was
classified as buggy: the implementation is correct but the tests assert the
wrong behavior. Rewrite only the test functions so they verify the scenarios
against the implementation as written. Do not modify or repeat the
implementation. Reply with only Python test code, no markdown fences, no prose.`
}

func regeneratePrompt(scenarios string, input model.Input, artifact model.Artifact, result model.SandboxResult) string {
	var b strings.Builder
	b.WriteString("Implementation:\n")
	b.WriteString(artifact.Implementation)
	b.WriteString("\n\nCurrent (buggy) tests:\n")
	b.WriteString(artifact.Tests)
	b.WriteString("\n\nTest scenarios:\n")
	b.WriteString(scenarios)
	b.WriteString("\n\nFailing output:\n")
	b.WriteString(result.Output)
	if input.Requirement != "" {
		b.WriteString("\n\nOriginal input:\n")
		b.WriteString(input.Requirement)
	}
	return b.String()
}

func classifyInstructions() string {
	return `You are a senior engineer doing failure triage. Given an implementation,
its test suite, and the failing pytest output, decide the root cause. Reply in
exactly this line-oriented format, nothing else:

FAILURE_TYPE: CODE_BUG | TEST_BUG | REQUIREMENTS_AMBIGUITY | UNKNOWN
CONFIDENCE: <0-100>
ANALYSIS: <why, may span multiple lines>
FIX_LOCATION: <function or line the fix applies to, omit if none>
FIX_CURRENT: <the code as it is now, omit if none>
FIX_SUGGESTED: <the corrected code, omit if none>

CODE_BUG means the implementation violates the stated requirement. TEST_BUG
means the tests assert behavior the requirement does not demand.
REQUIREMENTS_AMBIGUITY means both readings are defensible and the requirement
must be clarified.`
}

func classifyPrompt(result model.SandboxResult, artifact model.Artifact, input model.Input) string {
	var b strings.Builder
	b.WriteString("Original input:\n")
	b.WriteString(input.Requirement)
	b.WriteString("\n\nImplementation:\n")
	b.WriteString(artifact.Implementation)
	b.WriteString("\n\nTests:\n")
	b.WriteString(artifact.Tests)
	b.WriteString("\n\nPytest output:\n")
	b.WriteString(result.Output)
	if len(result.FailingCases) > 0 {
		b.WriteString("\n\nFailing cases: ")
		b.WriteString(strings.Join(result.FailingCases, ", "))
	}
	return b.String()
}
