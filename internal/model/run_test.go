package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunSummary_Check(t *testing.T) {
	sum := RunSummary{RunID: "r", Evaluated: 6, Admitted: 2, Deferred: 1, Skipped: 2, Aborted: 1}
	assert.NoError(t, sum.Check())

	sum.Admitted = 0
	err := sum.Check()
	assert.ErrorContains(t, err, "admitted+deferred+skipped+aborted=4, evaluated=6")

	assert.NoError(t, RunSummary{Status: RunSkipped}.Check())
}
