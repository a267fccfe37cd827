package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseroad/pulse/backend/internal/pipeline"
)

func TestParseAssessmentCleanJSON(t *testing.T) {
	a, ok := pipeline.ParseAssessment(`{"condition":"fair","condition_score":0.6,"distresses":["cracking"],"confidence":0.8}`)
	require.True(t, ok)
	assert.True(t, a.ParseOK())
	require.NotNil(t, a.Condition)
	assert.Equal(t, "fair", *a.Condition)
	require.NotNil(t, a.ConditionScore)
	assert.Equal(t, 0.6, *a.ConditionScore)
	assert.Equal(t, []string{"cracking"}, a.Distresses)
}

func TestParseAssessmentFencedResponse(t *testing.T) {
	raw := "Here is my assessment:\n```json\n{\"condition\": \"poor\", \"condition_score\": 0.3}\n```\nLet me know if you need more."
	a, ok := pipeline.ParseAssessment(raw)
	require.True(t, ok)
	require.NotNil(t, a.Condition)
	assert.Equal(t, "poor", *a.Condition)
}

func TestParseAssessmentNoJSON(t *testing.T) {
	a, ok := pipeline.ParseAssessment("I cannot assess the road from these images.")
	assert.False(t, ok)
	assert.False(t, a.ParseOK())
	assert.Equal(t, pipeline.ParseFailed, a.Error)
	assert.Nil(t, a.ConditionScore)
}

func TestParseAssessmentBrokenJSON(t *testing.T) {
	_, ok := pipeline.ParseAssessment(`{"condition": "fair",`)
	assert.False(t, ok)
}

func TestParseAssessmentMissingFieldsStayNil(t *testing.T) {
	a, ok := pipeline.ParseAssessment(`{"condition": "good"}`)
	require.True(t, ok)
	assert.Nil(t, a.ConditionScore, "absent score is nil, not zero")
	assert.Nil(t, a.Confidence)
}

func TestBuildPrompt(t *testing.T) {
	p := pipeline.BuildPrompt(4)
	assert.Contains(t, p, "4 frames")
	assert.Contains(t, p, `"condition_score"`)
}
