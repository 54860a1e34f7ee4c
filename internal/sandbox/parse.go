package sandbox

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/veritest/veritest/internal/model"
)

var (
	summaryRe     = regexp.MustCompile(`(\d+) (passed|failed|error)`)
	failedLineRe  = regexp.MustCompile(`FAILED\s+\S+::(\S+)`)
	failedShortRe = regexp.MustCompile(`(test_\w+)\s+FAILED`)
)

// ParsePytestOutput extracts pass/fail counts and the failing case
// identifiers from verbose pytest output.
func ParsePytestOutput(output string) model.SandboxResult {
	result := model.SandboxResult{Output: output}

	for _, match := range summaryRe.FindAllStringSubmatch(output, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		switch match[2] {
		case "passed":
			result.Passed = n
		case "failed", "error":
			result.Failed += n
		}
	}

	seen := make(map[string]struct{})
	for _, line := range strings.Split(output, "\n") {
		name := ""
		if m := failedLineRe.FindStringSubmatch(line); m != nil {
			name = m[1]
		} else if m := failedShortRe.FindStringSubmatch(line); m != nil {
			name = m[1]
		}
		if name == "" {
			continue
		}
		// Trim parametrize suffixes and progress markers.
		if i := strings.IndexAny(name, " ["); i > 0 {
			name = name[:i]
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		result.FailingCases = append(result.FailingCases, name)
	}
	sort.Strings(result.FailingCases)

	if result.Failed == 0 && len(result.FailingCases) > 0 {
		result.Failed = len(result.FailingCases)
	}
	return result
}
