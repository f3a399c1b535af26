package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-interview/internal/model"
)

func strPtr(s string) *string { return &s }

func TestApplyAnswerDiff_AddsFirstTurn(t *testing.T) {
	out := ApplyAnswerDiff(model.AnswerDocument{}, AnswerDiff{
		QuestionID:   "q1",
		NewAnswer:    strPtr("Hello"),
		QuestionText: "Who are you?",
		EvidenceRefs: []string{"doc-1"},
		Model:        &model.ModelMetadata{Provider: "openai", Name: "gpt-4o-mini"},
	})

	require.Len(t, out["q1"], 1)
	turn := out["q1"][0]
	assert.Equal(t, 0, turn.TurnIndex)
	assert.Equal(t, "Hello", turn.AnswerText)
	assert.Equal(t, "Who are you?", turn.QuestionText)
	assert.Equal(t, []string{"doc-1"}, turn.EvidenceRefs)
	assert.Equal(t, "gpt-4o-mini", turn.Model.Name)
}

func TestApplyAnswerDiff_DeletesOnNilOrBlank(t *testing.T) {
	doc := model.AnswerDocument{
		"q1": {{TurnIndex: 0, AnswerText: "a"}},
		"q2": {{TurnIndex: 0, AnswerText: "b"}},
	}

	out := ApplyAnswerDiff(doc, AnswerDiff{QuestionID: "q1"})
	assert.NotContains(t, out, "q1")
	assert.Contains(t, out, "q2")

	out = ApplyAnswerDiff(doc, AnswerDiff{QuestionID: "q2", NewAnswer: strPtr("   ")})
	assert.NotContains(t, out, "q2")
	assert.Contains(t, out, "q1")

	// Removing a question that is not there is a no-op.
	out = ApplyAnswerDiff(doc, AnswerDiff{QuestionID: "missing"})
	assert.Len(t, out, 2)
}

func TestApplyAnswerDiff_ReplacesLastTurnWhenQuestionUnchanged(t *testing.T) {
	doc := model.AnswerDocument{
		"q1": {
			{TurnIndex: 0, QuestionText: "Why?", AnswerText: "first"},
			{TurnIndex: 1, QuestionText: "And then?", AnswerText: "second"},
		},
	}

	out := ApplyAnswerDiff(doc, AnswerDiff{QuestionID: "q1", NewAnswer: strPtr("edited")})
	require.Len(t, out["q1"], 2)
	assert.Equal(t, "edited", out["q1"][1].AnswerText)
	assert.Equal(t, "And then?", out["q1"][1].QuestionText)

	out = ApplyAnswerDiff(doc, AnswerDiff{QuestionID: "q1", NewAnswer: strPtr("edited"), QuestionText: "And then?"})
	require.Len(t, out["q1"], 2)
	assert.Equal(t, "edited", out["q1"][1].AnswerText)
}

func TestApplyAnswerDiff_AppendsTurn(t *testing.T) {
	doc := model.AnswerDocument{
		"q1": {{TurnIndex: 0, QuestionText: "Why?", AnswerText: "first"}},
	}

	out := ApplyAnswerDiff(doc, AnswerDiff{QuestionID: "q1", NewAnswer: strPtr("more"), QuestionText: "Tell me more"})
	require.Len(t, out["q1"], 2)
	assert.Equal(t, 1, out["q1"][1].TurnIndex)
	assert.Equal(t, "Tell me more", out["q1"][1].QuestionText)

	out = ApplyAnswerDiff(doc, AnswerDiff{QuestionID: "q1", NewAnswer: strPtr("again"), AppendTurn: true})
	require.Len(t, out["q1"], 2)
	assert.Equal(t, "again", out["q1"][1].AnswerText)
	assert.Equal(t, "first", out["q1"][0].AnswerText)
}

func TestApplyAnswerDiff_IsPure(t *testing.T) {
	doc := model.AnswerDocument{
		"q1": {{TurnIndex: 0, QuestionText: "Why?", AnswerText: "first"}},
	}
	snapshot := doc.Clone()
	diff := AnswerDiff{QuestionID: "q1", NewAnswer: strPtr("changed")}

	first := ApplyAnswerDiff(doc, diff)
	second := ApplyAnswerDiff(doc, diff)

	assert.Equal(t, snapshot, doc)
	assert.Equal(t, first, second)
	assert.Equal(t, "first", doc["q1"][0].AnswerText)
}
