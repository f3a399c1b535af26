package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestInterviewSession_Questions(t *testing.T) {
	var session InterviewSession

	ids, err := session.Questions()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, session.SetQuestions([]string{"q1", "q2"}))
	ids, err = session.Questions()
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids)

	session.QuestionIDs = datatypes.JSON(`{"q1":true}`)
	_, err = session.Questions()
	assert.Error(t, err)
}

func TestInterviewSession_CloneIsDeep(t *testing.T) {
	session := &InterviewSession{}
	require.NoError(t, session.SetAnswers(AnswerDocument{"q1": {{TurnIndex: 0, AnswerText: "a"}}}))

	clone := session.Clone()
	clone.AnswersJSON[2] = 'x'
	assert.NotEqual(t, string(session.AnswersJSON), string(clone.AnswersJSON))
}
