package app

import (
	"context"

	"github.com/google/uuid"

	"gopherai-interview/internal/model"
)

// GenerationRequest carries a read-only snapshot of the answers.
type GenerationRequest struct {
	SessionID   uuid.UUID
	ContentType model.ContentType
	Answers     model.AnswerDocument
}

// Generator turns a finalized answer set into structured content. It is a
// slow remote call that may fail; finalize treats any error as retryable.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*model.GeneratedContent, error)
}
