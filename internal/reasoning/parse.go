package reasoning

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/veritest/veritest/internal/model"
)

const defaultConfidence = 50

// ParseClassification normalizes the collaborator's triage reply into the
// closed classification set. Malformed or out-of-range values degrade to
// UNKNOWN with the raw reply preserved as rationale; an open string never
// leaks into branching logic.
func ParseClassification(raw string) model.Classification {
	fields := parseKeyedLines(raw, []string{
		"FAILURE_TYPE", "CONFIDENCE", "ANALYSIS", "FIX_LOCATION", "FIX_CURRENT", "FIX_SUGGESTED",
	})

	c := model.Classification{
		Kind:       model.KindUnknown,
		Confidence: defaultConfidence,
		Rationale:  strings.TrimSpace(fields["ANALYSIS"]),
	}

	kind := model.ClassificationKind(strings.ToUpper(strings.TrimSpace(fields["FAILURE_TYPE"])))
	if rawConf, ok := fields["CONFIDENCE"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(rawConf)); err == nil {
			c.Confidence = clamp(n)
		}
	}
	if kind.Valid() {
		c.Kind = kind
	} else {
		c.Confidence = 0
		if c.Rationale == "" {
			c.Rationale = strings.TrimSpace(raw)
		}
	}

	fix := model.SuggestedFix{
		Location:  strings.TrimSpace(fields["FIX_LOCATION"]),
		Current:   strings.TrimSpace(fields["FIX_CURRENT"]),
		Suggested: strings.TrimSpace(fields["FIX_SUGGESTED"]),
	}
	if fix != (model.SuggestedFix{}) {
		c.Fix = &fix
	}
	return c
}

// ParseCandidate splits the generation reply into implementation and tests.
// In TEST mode the implementation section defaults to the caller's original
// code when the collaborator omits it.
func ParseCandidate(raw string, mode model.Mode, input model.Input) (model.Artifact, error) {
	text := StripCodeFences(raw)

	implIdx := strings.Index(text, implementationMarker)
	testsIdx := strings.Index(text, testsMarker)
	if testsIdx < 0 {
		return model.Artifact{}, fmt.Errorf("candidate response missing %q section", testsMarker)
	}

	artifact := model.Artifact{
		Tests: strings.TrimSpace(text[testsIdx+len(testsMarker):]),
	}
	if implIdx >= 0 && implIdx < testsIdx {
		artifact.Implementation = strings.TrimSpace(text[implIdx+len(implementationMarker) : testsIdx])
	}
	if artifact.Implementation == "" && mode == model.ModeTest {
		artifact.Implementation = strings.TrimSpace(input.Requirement)
	}
	if artifact.Tests == "" {
		return model.Artifact{}, fmt.Errorf("candidate response contains no tests")
	}
	if artifact.Implementation == "" {
		return model.Artifact{}, fmt.Errorf("candidate response contains no implementation")
	}
	return artifact, nil
}

// StripCodeFences removes a leading/trailing markdown code fence when the
// collaborator wraps its reply in one despite instructions.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// parseKeyedLines reads a line-oriented "KEY: value" reply where values may
// span multiple lines until the next known key.
func parseKeyedLines(raw string, keys []string) map[string]string {
	known := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		known[k] = struct{}{}
	}

	fields := make(map[string]string)
	current := ""
	for _, line := range strings.Split(raw, "\n") {
		key, value, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if found {
			if _, ok := known[key]; ok {
				fields[key] = strings.TrimSpace(value)
				current = key
				continue
			}
		}
		if current != "" {
			fields[current] += "\n" + line
		}
	}
	return fields
}
