package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SessionEventKind string

const (
	EventCreated          SessionEventKind = "created"
	EventAnswerSaved      SessionEventKind = "answer_saved"
	EventAnswersReplaced  SessionEventKind = "answers_replaced"
	EventFinalized        SessionEventKind = "finalized"
	EventGenerationFailed SessionEventKind = "generation_failed"
	EventDeleted          SessionEventKind = "deleted"
	EventRestored         SessionEventKind = "restored"
	EventConflict         SessionEventKind = "conflict"
	EventDenied           SessionEventKind = "denied"
)

// SessionEvent is an audit record of something that happened to a session,
// including rejected attempts.
type SessionEvent struct {
	ID         uuid.UUID        `gorm:"type:char(36);primaryKey" json:"id"`
	SessionID  uuid.UUID        `gorm:"type:char(36);not null;index" json:"session_id"`
	ActorID    uuid.UUID        `gorm:"type:char(36);not null;index" json:"actor_id"`
	Kind       SessionEventKind `gorm:"size:32;not null;index" json:"kind"`
	Version    int              `json:"version"`
	Payload    datatypes.JSON   `json:"payload,omitempty"`
	OccurredAt time.Time        `gorm:"not null;index" json:"occurred_at"`
}
