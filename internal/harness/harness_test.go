package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestScenarios_Golden(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.Len(t, paths, 7)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "an offline write is queued, not sent",
		Flow: []Step{{
			Do:     StepCall,
			Method: "POST",
			Path:   "/products",
			Body:   map[string]any{"name": "Tea"},
			Expect: &ExpectClause{Result: map[string]any{"source": "network"}},
		}},
		Assertions: []Assertion{{Type: AssertFinalState, Table: TableQueue, Count: intPtr(1)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[0] call")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected_error",
		Description: "retrying an unknown dead letter fails the step",
		Flow:        []Step{{Do: StepRetry, ID: "nope"}},
		Assertions:  []Assertion{{Type: AssertFinalState, Table: TableDeadLetter, Count: intPtr(0)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_ExpectedErrorMissingFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing_error",
		Description: "an online sync succeeds",
		Online:      true,
		Flow:        []Step{{Do: StepSync, Expect: &ExpectClause{Error: "offline"}}},
		Assertions:  []Assertion{{Type: AssertFinalState, Table: TableQueue, Count: intPtr(0)}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "got success")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "setup_fails",
		Description: "sync while offline cannot run",
		Setup:       []Step{{Do: StepSync}},
		Flow:        []Step{{Do: StepOnline}},
		Assertions:  []Assertion{{Type: AssertFinalState, Table: TableQueue, Count: intPtr(0)}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (sync)")
}

func TestRun_UnroutableActionIsDeadLettered(t *testing.T) {
	scenario := &Scenario{
		Name:        "unroutable",
		Description: "an update without its id cannot be routed",
		Online:      true,
		Flow: []Step{
			{Do: StepEnqueue, Entity: "product", Type: "update", Body: map[string]any{"name": "Tea"}},
			{Do: StepSync, Expect: &ExpectClause{Result: map[string]any{"dead": 1}}},
		},
		Assertions: []Assertion{{
			Type:   AssertFinalState,
			Table:  TableDeadLetter,
			Where:  map[string]any{"id": "action-1"},
			Expect: map[string]any{"retries": 0},
		}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace, "an unroutable action never reaches the gateway")
}

func TestRun_DismissRemovesDeadLetter(t *testing.T) {
	scenario := &Scenario{
		Name:        "dismiss",
		Description: "a dismissed dead letter is gone for good",
		Online:      true,
		MaxRetries:  1,
		Flow: []Step{
			{Do: StepEnqueue, Entity: "expense", Type: "create", Body: map[string]any{"amount": 3}},
			{Do: StepSync},
			{Do: StepDismiss, ID: "action-1", Expect: &ExpectClause{Result: map[string]any{"dead_count": 0}}},
			{Do: StepDismiss, ID: "action-1", Expect: &ExpectClause{Error: "not found"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: TableDeadLetter, Count: intPtr(0)},
			{Type: AssertFinalState, Table: TableQueue, Count: intPtr(0)},
			{Type: AssertTraceCount, Action: "POST /expenses", Count: intPtr(1)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AdvanceRevertsStatus(t *testing.T) {
	scenario := &Scenario{
		Name:        "revert",
		Description: "a finished sync reverts to idle after the revert delay",
		Online:      true,
		Flow: []Step{
			{Do: StepSync},
			{Do: StepAdvance, Duration: "3s", Expect: &ExpectClause{Result: map[string]any{"sync_status": "idle"}}},
		},
		Assertions: []Assertion{{Type: AssertFinalState, Table: TableStatus, Expect: map[string]any{"sync_status": "idle"}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunSuite(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios", "offline_*")
	require.NoError(t, err)
	require.Len(t, paths, 2)

	res := RunSuite(append(paths, "testdata/scenarios/missing.yaml"))
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "offline_create_replays", res.Scenarios[0].Name)
	assert.False(t, res.Scenarios[2].Pass)
	assert.Contains(t, res.Scenarios[2].Errors[0], "failed to read scenario file")
}

func TestFindScenarios_InvalidFilter(t *testing.T) {
	_, err := FindScenarios("testdata/scenarios", "[")
	require.Error(t, err)
}
