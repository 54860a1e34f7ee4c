package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veritest/veritest/internal/model"
)

func TestParsePytestOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		output      string
		wantPassed  int
		wantFailed  int
		wantFailing []string
	}{
		{
			name: "all passing",
			output: `test_veritest.py::test_regular_discount PASSED [ 50%]
test_veritest.py::test_premium_discount PASSED [100%]

============================== 2 passed in 0.04s ===============================`,
			wantPassed: 2,
		},
		{
			name: "mixed results",
			output: `test_veritest.py::test_regular_discount PASSED [ 33%]
test_veritest.py::test_vip_discount FAILED [ 66%]
test_veritest.py::test_none_input FAILED [100%]

=========================== short test summary info ============================
FAILED test_veritest.py::test_vip_discount - assert 20.0 == 25.0
FAILED test_veritest.py::test_none_input - TypeError
========================= 2 failed, 1 passed in 0.06s ==========================`,
			wantPassed:  1,
			wantFailed:  2,
			wantFailing: []string{"test_none_input", "test_vip_discount"},
		},
		{
			name: "parametrized case",
			output: `FAILED test_veritest.py::test_bounds[negative] - ValueError
========================= 1 failed, 4 passed in 0.05s ==========================`,
			wantPassed:  4,
			wantFailed:  1,
			wantFailing: []string{"test_bounds"},
		},
		{
			name:   "no results",
			output: "ERROR: file or directory not found: test_veritest.py",
		},
		{
			name: "errors counted as failures",
			output: `==================================== ERRORS ====================================
========================= 1 error in 0.03s =====================================`,
			wantFailed: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParsePytestOutput(tt.output)
			assert.Equal(t, tt.wantPassed, got.Passed)
			assert.Equal(t, tt.wantFailed, got.Failed)
			assert.Equal(t, tt.wantFailing, got.FailingCases)
			assert.Equal(t, tt.output, got.Output)
		})
	}
}

func TestMergeArtifact(t *testing.T) {
	t.Parallel()

	merged := MergeArtifact(model.Artifact{
		Implementation: "def add(a, b):\n    return a + b",
		Tests:          "def test_add():\n    assert add(1, 2) == 3",
	})
	assert.Equal(t, "def add(a, b):\n    return a + b\n\n\ndef test_add():\n    assert add(1, 2) == 3\n", merged)

	testsOnly := MergeArtifact(model.Artifact{Tests: "def test_noop():\n    pass"})
	assert.Equal(t, "def test_noop():\n    pass\n", testsOnly)
}

func TestAllPassedRequiresCleanRun(t *testing.T) {
	t.Parallel()

	assert.True(t, model.SandboxResult{Passed: 3}.AllPassed())
	assert.False(t, model.SandboxResult{Passed: 3, Failed: 1}.AllPassed())
	assert.False(t, model.SandboxResult{}.AllPassed())
	assert.False(t, model.SandboxResult{Passed: 3, ExecError: "timeout"}.AllPassed())
}
