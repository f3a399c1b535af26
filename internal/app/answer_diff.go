package app

import (
	"strings"

	"gopherai-interview/internal/model"
)

// AnswerDiff is a change to exactly one question's answer. A nil or blank
// NewAnswer removes the question from the document.
type AnswerDiff struct {
	QuestionID   string
	NewAnswer    *string
	QuestionText string
	EvidenceRefs []string
	Model        *model.ModelMetadata
	AppendTurn   bool
}

// ApplyAnswerDiff returns a new document with the diff applied. It never
// modifies doc; entries for other questions are shared, not copied.
//
// A non-empty answer replaces the last turn when the question text is
// unchanged (or omitted), and appends a new turn otherwise or when
// AppendTurn is set.
func ApplyAnswerDiff(doc model.AnswerDocument, diff AnswerDiff) model.AnswerDocument {
	out := make(model.AnswerDocument, len(doc)+1)
	for id, turns := range doc {
		if id != diff.QuestionID {
			out[id] = turns
		}
	}

	if diff.NewAnswer == nil || strings.TrimSpace(*diff.NewAnswer) == "" {
		return out
	}

	existing := doc[diff.QuestionID]
	turns := make([]model.AnswerTurn, 0, len(existing)+1)
	for _, turn := range existing {
		turns = append(turns, turn.Clone())
	}

	last := len(turns) - 1
	replace := last >= 0 && !diff.AppendTurn &&
		(diff.QuestionText == "" || diff.QuestionText == turns[last].QuestionText)

	if replace {
		turn := turns[last]
		turn.AnswerText = *diff.NewAnswer
		if diff.EvidenceRefs != nil {
			turn.EvidenceRefs = append([]string(nil), diff.EvidenceRefs...)
		}
		if diff.Model != nil {
			m := *diff.Model
			turn.Model = &m
		}
		turns[last] = turn
	} else {
		turn := model.AnswerTurn{
			TurnIndex:    len(turns),
			QuestionText: diff.QuestionText,
			AnswerText:   *diff.NewAnswer,
		}
		if diff.EvidenceRefs != nil {
			turn.EvidenceRefs = append([]string(nil), diff.EvidenceRefs...)
		}
		if diff.Model != nil {
			m := *diff.Model
			turn.Model = &m
		}
		turns = append(turns, turn)
	}
	out[diff.QuestionID] = turns
	return out
}
