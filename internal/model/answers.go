package model

import (
	"fmt"
	"sort"
	"strings"
)

// AnswerTurn is one question/answer exchange. TurnIndex starts at 0 and
// follows the position of the turn inside its question.
type AnswerTurn struct {
	TurnIndex    int            `json:"turnIndex"`
	QuestionText string         `json:"questionText,omitempty"`
	AnswerText   string         `json:"answerText"`
	EvidenceRefs []string       `json:"evidenceRefs,omitempty"`
	Model        *ModelMetadata `json:"model,omitempty"`
}

type ModelMetadata struct {
	Provider string `json:"provider,omitempty"`
	Name     string `json:"name,omitempty"`
	PromptID string `json:"promptId,omitempty"`
}

// AnswerDocument maps a question id to its ordered turns.
type AnswerDocument map[string][]AnswerTurn

// QuestionIDs returns the document keys in a stable order.
func (d AnswerDocument) QuestionIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AnsweredCount counts questions holding at least one non-blank answer.
func (d AnswerDocument) AnsweredCount() int {
	count := 0
	for _, turns := range d {
		for _, turn := range turns {
			if strings.TrimSpace(turn.AnswerText) != "" {
				count++
				break
			}
		}
	}
	return count
}

// Clone deep-copies the document.
func (d AnswerDocument) Clone() AnswerDocument {
	if d == nil {
		return AnswerDocument{}
	}
	out := make(AnswerDocument, len(d))
	for id, turns := range d {
		out[id] = cloneTurns(turns)
	}
	return out
}

// Validate checks the shape accepted from clients: non-blank keys, at least
// one turn per key and contiguous turn indexes starting at 0.
func (d AnswerDocument) Validate() error {
	for id, turns := range d {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("answers contain a blank question id")
		}
		if len(turns) == 0 {
			return fmt.Errorf("question %q has no turns", id)
		}
		for i, turn := range turns {
			if turn.TurnIndex != i {
				return fmt.Errorf("question %q turn %d has index %d", id, i, turn.TurnIndex)
			}
		}
	}
	return nil
}

func cloneTurns(turns []AnswerTurn) []AnswerTurn {
	if turns == nil {
		return nil
	}
	out := make([]AnswerTurn, len(turns))
	for i, turn := range turns {
		out[i] = turn.Clone()
	}
	return out
}

func (t AnswerTurn) Clone() AnswerTurn {
	out := t
	if t.EvidenceRefs != nil {
		out.EvidenceRefs = append([]string(nil), t.EvidenceRefs...)
	}
	if t.Model != nil {
		m := *t.Model
		out.Model = &m
	}
	return out
}
