package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritest/veritest/internal/model"
)

func TestParseClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want model.Classification
	}{
		{
			name: "code bug with fix",
			raw: `FAILURE_TYPE: CODE_BUG
CONFIDENCE: 85
ANALYSIS: Type check runs before the None check, so None raises TypeError.
FIX_LOCATION: calculate_discount, validation block
FIX_CURRENT: if not isinstance(price, (int, float)):
FIX_SUGGESTED: if price is None: raise ValueError("price is None")`,
			want: model.Classification{
				Kind:       model.KindCodeBug,
				Confidence: 85,
				Rationale:  "Type check runs before the None check, so None raises TypeError.",
				Fix: &model.SuggestedFix{
					Location:  "calculate_discount, validation block",
					Current:   "if not isinstance(price, (int, float)):",
					Suggested: `if price is None: raise ValueError("price is None")`,
				},
			},
		},
		{
			name: "test bug lowercase kind",
			raw: `FAILURE_TYPE: test_bug
CONFIDENCE: 70
ANALYSIS: The expected value ignores the VIP bonus.`,
			want: model.Classification{
				Kind:       model.KindTestBug,
				Confidence: 70,
				Rationale:  "The expected value ignores the VIP bonus.",
			},
		},
		{
			name: "multiline analysis",
			raw: `FAILURE_TYPE: REQUIREMENTS_AMBIGUITY
CONFIDENCE: 60
ANALYSIS: The requirement does not state whether the VIP bonus
stacks with the base discount or replaces it.`,
			want: model.Classification{
				Kind:       model.KindRequirementsAmbiguity,
				Confidence: 60,
				Rationale:  "The requirement does not state whether the VIP bonus\nstacks with the base discount or replaces it.",
			},
		},
		{
			name: "open set kind degrades to unknown",
			raw:  "FAILURE_TYPE: FLAKY_INFRA\nCONFIDENCE: 90\nANALYSIS: who knows",
			want: model.Classification{
				Kind:       model.KindUnknown,
				Confidence: 0,
				Rationale:  "who knows",
			},
		},
		{
			name: "freeform garbage",
			raw:  "I think the code is probably wrong somewhere.",
			want: model.Classification{
				Kind:       model.KindUnknown,
				Confidence: 0,
				Rationale:  "I think the code is probably wrong somewhere.",
			},
		},
		{
			name: "confidence clamped",
			raw:  "FAILURE_TYPE: CODE_BUG\nCONFIDENCE: 250\nANALYSIS: x",
			want: model.Classification{Kind: model.KindCodeBug, Confidence: 100, Rationale: "x"},
		},
		{
			name: "missing confidence uses default",
			raw:  "FAILURE_TYPE: TEST_BUG\nANALYSIS: x",
			want: model.Classification{Kind: model.KindTestBug, Confidence: defaultConfidence, Rationale: "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseClassification(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Kind.Valid())
		})
	}
}

func TestParseCandidate(t *testing.T) {
	t.Parallel()

	raw := `=== IMPLEMENTATION ===
def add(a, b):
    return a + b

=== TESTS ===
def test_add():
    assert add(1, 2) == 3`

	artifact, err := ParseCandidate(raw, model.ModeGenerate, model.Input{})
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a + b", artifact.Implementation)
	assert.Equal(t, "def test_add():\n    assert add(1, 2) == 3", artifact.Tests)
}

func TestParseCandidateTestModeFallsBackToInputCode(t *testing.T) {
	t.Parallel()

	raw := "=== TESTS ===\ndef test_noop():\n    pass"
	input := model.Input{Requirement: "def noop():\n    pass", Function: "noop"}

	artifact, err := ParseCandidate(raw, model.ModeTest, input)
	require.NoError(t, err)
	assert.Equal(t, input.Requirement, artifact.Implementation)
	assert.Equal(t, "def test_noop():\n    pass", artifact.Tests)
}

func TestParseCandidateMissingSections(t *testing.T) {
	t.Parallel()

	_, err := ParseCandidate("def test_x():\n    pass", model.ModeGenerate, model.Input{})
	require.Error(t, err)

	_, err = ParseCandidate("=== TESTS ===\ndef test_x():\n    pass", model.ModeGenerate, model.Input{})
	require.Error(t, err)
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "def f():\n    pass", StripCodeFences("```python\ndef f():\n    pass\n```"))
	assert.Equal(t, "plain text", StripCodeFences("plain text"))
}
