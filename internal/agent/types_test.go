package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifacts(t *testing.T) {
	full := Artifacts{}
	assert.Equal(t, "none", full.String())

	full.Append("a", AttemptRecord{Attempt: 1})
	full.Append("a", AttemptRecord{Attempt: 2})
	full.Append("b", AttemptRecord{Attempt: 1})

	assert.Equal(t, 3, full.Len())
	assert.Equal(t, []int{1, 2}, []int{full["a"][0].Attempt, full["a"][1].Attempt})
	assert.Contains(t, full.String(), `"critic_verdict": false`)
}

func TestNewAttemptRecord(t *testing.T) {
	rec := NewAttemptRecord(2,
		Outcome{Completed: true, Output: "x", ChosenCapability: "c", CreatedCapability: "c", Args: map[string]interface{}{"k": "v"}},
		Verdict{IsCorrect: true, Report: "good"})

	assert.Equal(t, 2, rec.Attempt)
	assert.True(t, rec.Completed)
	assert.True(t, rec.CriticVerdict)
	assert.Equal(t, "good", rec.CriticReport)
	assert.Equal(t, "c", rec.CreatedCapability)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestCleanArtifactsString(t *testing.T) {
	assert.Equal(t, "none", CleanArtifacts{}.String())
	assert.Contains(t, CleanArtifacts{"s": {Output: "o"}}.String(), `"output": "o"`)
}
