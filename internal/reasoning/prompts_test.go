package reasoning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veritest/veritest/internal/model"
)

func TestGeneratePromptTestModeBodyIsTheSource(t *testing.T) {
	t.Parallel()

	source := "def add(a, b):\n    return a + b"
	input := model.Input{Requirement: source, Function: "add"}

	prompt := generatePrompt("1. adds two ints", input, model.ModeTest)

	// The source code is the prompt body; the function name appears only in
	// the target parenthetical.
	assert.Contains(t, prompt, "Function under test (target: add):\n"+source)
	assert.Equal(t, 1, strings.Count(prompt, source))
}

func TestGeneratePromptGenerateMode(t *testing.T) {
	t.Parallel()

	input := model.Input{Requirement: "a discount calculator"}
	prompt := generatePrompt("1. basic discount", input, model.ModeGenerate)

	assert.Contains(t, prompt, "Requirement:\na discount calculator")
	assert.NotContains(t, prompt, "target:")
}
