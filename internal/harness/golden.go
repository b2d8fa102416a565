package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// RunWithGolden runs a scenario, fails the test on any expectation
// mismatch, and asserts the canonical snapshot against
// testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	require.NoError(t, err, "scenario %s", scenario.Name)

	for _, e := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, e)
	}

	snap, err := Snapshot(result)
	require.NoError(t, err, "snapshot %s", scenario.Name)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snap)

	return result
}
