package main

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thesyncim/abrsim/pkg/abr"
	"github.com/thesyncim/abrsim/pkg/abr/testutil"
)

func TestSoakScenarios(t *testing.T) {
	result := SoakResult{Status: "PASS", MinScore: math.Inf(1), MaxScore: math.Inf(-1)}
	soakScenarios(&result)

	assert.Equal(t, "PASS", result.Status)
	assert.Equal(t, len(testutil.Scenarios())*len(abr.Algorithms()), result.Runs)
	assert.Zero(t, result.Violations)
	assert.Zero(t, result.Mismatches)
	assert.GreaterOrEqual(t, result.MinScore, 0.0)
	assert.LessOrEqual(t, result.MaxScore, abr.MaxScore)
}

func TestRunSoakTest_Short(t *testing.T) {
	result := runSoakTest(context.Background(), 200*time.Millisecond, 1)

	assert.Equal(t, "PASS", result.Status)
	assert.GreaterOrEqual(t, result.Runs, len(testutil.Scenarios())*len(abr.Algorithms()))
	assert.Zero(t, result.Violations)
}
