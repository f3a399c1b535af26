package ai

import (
	"fmt"
	"strings"

	"gopherai-interview/internal/model"
)

func systemPrompt(contentType model.ContentType) string {
	return fmt.Sprintf(`You turn interview answers into structured copy for a %s page.
Answer with a single JSON object using exactly these keys:
"category" (string), "summary" (one sentence), "unique_value_proposition" (string),
"target_customers" (array of strings), "pain_points" (array of strings),
"features" (array of strings), "representative_case" (string), "pricing_overview" (string).
Use only facts stated in the answers. Leave a field empty when the answers do not cover it.`,
		strings.ReplaceAll(string(contentType), "_", " "))
}

// RenderTranscript flattens the document into Q/A text ordered by question
// id then turn index. Blank answers are skipped.
func RenderTranscript(doc model.AnswerDocument) string {
	var b strings.Builder
	for _, id := range doc.QuestionIDs() {
		for _, turn := range doc[id] {
			answer := strings.TrimSpace(turn.AnswerText)
			if answer == "" {
				continue
			}
			question := strings.TrimSpace(turn.QuestionText)
			if question == "" {
				question = id
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString("Q: ")
			b.WriteString(question)
			b.WriteString("\nA: ")
			b.WriteString(answer)
		}
	}
	return b.String()
}
