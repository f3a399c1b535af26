package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ContentType string

const (
	ContentTypeService   ContentType = "service"
	ContentTypeProduct   ContentType = "product"
	ContentTypePost      ContentType = "post"
	ContentTypeNews      ContentType = "news"
	ContentTypeFAQ       ContentType = "faq"
	ContentTypeCaseStudy ContentType = "case_study"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeService, ContentTypeProduct, ContentTypePost,
		ContentTypeNews, ContentTypeFAQ, ContentTypeCaseStudy:
		return true
	}
	return false
}

type SessionStatus string

const (
	StatusDraft      SessionStatus = "draft"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// InterviewSession is the persisted session row. Version is the optimistic
// lock token and grows by exactly one per committed write.
type InterviewSession struct {
	ID             uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	OrganizationID *uuid.UUID     `gorm:"type:char(36);index" json:"organization_id"`
	UserID         uuid.UUID      `gorm:"type:char(36);not null;index" json:"user_id"`
	ContentType    ContentType    `gorm:"size:32;not null" json:"content_type"`
	Status         SessionStatus  `gorm:"size:16;not null;index" json:"status"`
	QuestionIDs    datatypes.JSON `gorm:"column:question_ids" json:"-"`
	AnswersJSON    datatypes.JSON `gorm:"column:answers" json:"-"`
	GeneratedJSON  datatypes.JSON `gorm:"column:generated_content" json:"-"`
	Version        int            `gorm:"not null" json:"version"`
	CreatedAt      time.Time      `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
	DeletedAt      *time.Time     `gorm:"index" json:"deleted_at,omitempty"`
}

func (InterviewSession) TableName() string { return "interview_sessions" }

func (s *InterviewSession) IsDeleted() bool {
	return s.DeletedAt != nil
}

func (s *InterviewSession) IsPersonal() bool {
	return s.OrganizationID == nil
}

// Answers decodes the answer document; a NULL column is an empty document.
func (s *InterviewSession) Answers() (AnswerDocument, error) {
	doc := AnswerDocument{}
	if len(s.AnswersJSON) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(s.AnswersJSON, &doc); err != nil {
		return nil, fmt.Errorf("decode answers failed: %w", err)
	}
	if doc == nil {
		doc = AnswerDocument{}
	}
	return doc, nil
}

func (s *InterviewSession) SetAnswers(doc AnswerDocument) error {
	if doc == nil {
		doc = AnswerDocument{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode answers failed: %w", err)
	}
	s.AnswersJSON = datatypes.JSON(raw)
	return nil
}

// Generated returns nil when no content has been generated yet.
func (s *InterviewSession) Generated() (*GeneratedContent, error) {
	if len(s.GeneratedJSON) == 0 || string(s.GeneratedJSON) == "null" {
		return nil, nil
	}
	var content GeneratedContent
	if err := json.Unmarshal(s.GeneratedJSON, &content); err != nil {
		return nil, fmt.Errorf("decode generated content failed: %w", err)
	}
	return &content, nil
}

func (s *InterviewSession) SetGenerated(content *GeneratedContent) error {
	if content == nil {
		s.GeneratedJSON = nil
		return nil
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode generated content failed: %w", err)
	}
	s.GeneratedJSON = datatypes.JSON(raw)
	return nil
}

// Questions decodes the question id list; a NULL column is an empty list.
func (s *InterviewSession) Questions() ([]string, error) {
	ids := []string{}
	if len(s.QuestionIDs) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(s.QuestionIDs, &ids); err != nil {
		return nil, fmt.Errorf("decode question ids failed: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *InterviewSession) SetQuestions(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode question ids failed: %w", err)
	}
	s.QuestionIDs = datatypes.JSON(raw)
	return nil
}

// Clone copies the row including its JSON buffers, so a mutation of the
// copy never leaks into the original.
func (s *InterviewSession) Clone() *InterviewSession {
	if s == nil {
		return nil
	}
	out := *s
	out.QuestionIDs = cloneBytes(s.QuestionIDs)
	out.AnswersJSON = cloneBytes(s.AnswersJSON)
	out.GeneratedJSON = cloneBytes(s.GeneratedJSON)
	if s.OrganizationID != nil {
		org := *s.OrganizationID
		out.OrganizationID = &org
	}
	if s.DeletedAt != nil {
		at := *s.DeletedAt
		out.DeletedAt = &at
	}
	return &out
}

func cloneBytes(b datatypes.JSON) datatypes.JSON {
	if b == nil {
		return nil
	}
	return append(datatypes.JSON(nil), b...)
}
