package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsvc "gopherai-interview/internal/app"
	"gopherai-interview/internal/model"
	"gopherai-interview/internal/platform/logger"
	"gopherai-interview/internal/transport/http/middleware"
	"gopherai-interview/internal/transport/http/response"
)

type InterviewHandler struct {
	svc *appsvc.InterviewService
	log *logger.Logger
}

func NewInterviewHandler(svc *appsvc.InterviewService, log *logger.Logger) *InterviewHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &InterviewHandler{svc: svc, log: log}
}

// RegisterInterviewRoutes mounts the session endpoints on an authenticated group.
func RegisterInterviewRoutes(rg *gin.RouterGroup, h *InterviewHandler) {
	rg.POST("/sessions", h.CreateSession)
	rg.GET("/sessions", h.ListSessions)
	rg.GET("/sessions/:id", h.GetSession)
	rg.POST("/save-answer-diff", h.SaveAnswerDiff)
	rg.POST("/replace-answers", h.ReplaceAnswers)
	rg.POST("/finalize", h.Finalize)
	rg.POST("/soft-delete", h.SoftDelete)
	rg.POST("/restore", h.Restore)
}

type createSessionRequest struct {
	OrganizationID *string  `json:"organizationId"`
	ContentType    string   `json:"contentType" binding:"required"`
	QuestionIDs    []string `json:"questionIds"`
}

type saveAnswerDiffRequest struct {
	SessionID         string               `json:"sessionId" binding:"required"`
	QuestionID        string               `json:"questionId" binding:"required"`
	NewAnswer         *string              `json:"newAnswer"`
	QuestionText      string               `json:"questionText"`
	EvidenceRefs      []string             `json:"evidenceRefs"`
	Model             *model.ModelMetadata `json:"model"`
	AppendTurn        bool                 `json:"appendTurn"`
	PreviousUpdatedAt time.Time            `json:"previousUpdatedAt"`
}

type replaceAnswersRequest struct {
	SessionID     string               `json:"sessionId" binding:"required"`
	Answers       model.AnswerDocument `json:"answers" binding:"required"`
	ClientVersion int                  `json:"clientVersion" binding:"required,min=1"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

func (h *InterviewHandler) CreateSession(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid request body")
		return
	}
	orgID, err := parseOptionalUUID(req.OrganizationID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid organizationId")
		return
	}

	view, err := h.svc.CreateSession(c.Request.Context(), appsvc.CreateSessionInput{
		ActorID:        actorID,
		OrganizationID: orgID,
		ContentType:    model.ContentType(strings.TrimSpace(req.ContentType)),
		QuestionIDs:    req.QuestionIDs,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ok":        true,
		"sessionId": view.ID,
		"status":    view.Status,
		"version":   view.Version,
		"updatedAt": view.UpdatedAt,
	})
}

func (h *InterviewHandler) ListSessions(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var orgID *uuid.UUID
	if raw := strings.TrimSpace(c.Query("organization_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid organization_id")
			return
		}
		orgID = &parsed
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid limit")
			return
		}
		limit = parsed
	}

	sessions, err := h.svc.ListSessions(c.Request.Context(), appsvc.ListSessionsInput{
		ActorID:        actorID,
		OrganizationID: orgID,
		Limit:          limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"ok": true, "sessions": sessions})
}

func (h *InterviewHandler) GetSession(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid session id")
		return
	}
	view, err := h.svc.GetSession(c.Request.Context(), actorID, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"ok": true, "session": view})
}

func (h *InterviewHandler) SaveAnswerDiff(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req saveAnswerDiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid request body")
		return
	}
	sessionID, ok := parseSessionID(c, req.SessionID)
	if !ok {
		return
	}

	result, err := h.svc.SaveAnswerDiff(c.Request.Context(), appsvc.SaveAnswerDiffInput{
		ActorID:           actorID,
		SessionID:         sessionID,
		QuestionID:        req.QuestionID,
		NewAnswer:         req.NewAnswer,
		QuestionText:      req.QuestionText,
		EvidenceRefs:      req.EvidenceRefs,
		Model:             req.Model,
		AppendTurn:        req.AppendTurn,
		PreviousUpdatedAt: req.PreviousUpdatedAt,
	})
	h.writeSave(c, result, err)
}

func (h *InterviewHandler) ReplaceAnswers(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req replaceAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid request body")
		return
	}
	sessionID, ok := parseSessionID(c, req.SessionID)
	if !ok {
		return
	}

	result, err := h.svc.ReplaceAnswers(c.Request.Context(), appsvc.ReplaceAnswersInput{
		ActorID:       actorID,
		SessionID:     sessionID,
		Answers:       req.Answers,
		ClientVersion: req.ClientVersion,
	})
	h.writeSave(c, result, err)
}

func (h *InterviewHandler) Finalize(c *gin.Context) {
	actorID, sessionID, ok := h.bindSession(c)
	if !ok {
		return
	}
	result, err := h.svc.Finalize(c.Request.Context(), appsvc.FinalizeInput{
		ActorID:   actorID,
		SessionID: sessionID,
	})
	switch {
	case errors.Is(err, appsvc.ErrGenerationFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ok":      false,
			"code":    response.CodeGenerationFailed,
			"message": "content generation failed, the session is unchanged and finalize can be retried",
		})
	case err != nil:
		h.writeError(c, err)
	case result.Conflict != nil:
		response.Conflict(c, result.Conflict)
	default:
		response.OK(c, result)
	}
}

func (h *InterviewHandler) SoftDelete(c *gin.Context) {
	actorID, sessionID, ok := h.bindSession(c)
	if !ok {
		return
	}
	result, err := h.svc.SoftDelete(c.Request.Context(), appsvc.LifecycleInput{
		ActorID:   actorID,
		SessionID: sessionID,
	})
	h.writeLifecycle(c, result, err)
}

func (h *InterviewHandler) Restore(c *gin.Context) {
	actorID, sessionID, ok := h.bindSession(c)
	if !ok {
		return
	}
	result, err := h.svc.Restore(c.Request.Context(), appsvc.LifecycleInput{
		ActorID:   actorID,
		SessionID: sessionID,
	})
	h.writeLifecycle(c, result, err)
}

func (h *InterviewHandler) writeSave(c *gin.Context, result *appsvc.SaveResult, err error) {
	switch {
	case err != nil:
		h.writeError(c, err)
	case result.Conflict != nil:
		response.Conflict(c, result.Conflict)
	default:
		response.OK(c, result)
	}
}

func (h *InterviewHandler) writeLifecycle(c *gin.Context, result *appsvc.LifecycleResult, err error) {
	switch {
	case err != nil:
		h.writeError(c, err)
	case result.Conflict != nil:
		response.Conflict(c, result.Conflict)
	default:
		response.OK(c, result)
	}
}

func (h *InterviewHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, appsvc.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeValidation, err.Error())
	case errors.Is(err, appsvc.ErrInvalidStateTransition):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidState, err.Error())
	case errors.Is(err, appsvc.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "access denied")
	case errors.Is(err, appsvc.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "session not found")
	case errors.Is(err, appsvc.ErrGenerationFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeGenerationFailed, "content generation failed")
	case errors.Is(err, appsvc.ErrStoreTimeout):
		response.Error(c, http.StatusGatewayTimeout, response.CodeTimeout, "storage timed out, re-fetch the session before retrying")
	default:
		h.log.Error("interview request failed", "path", c.FullPath(), "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, "internal server error")
	}
}

func (h *InterviewHandler) actor(c *gin.Context) (uuid.UUID, bool) {
	actorID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return actorID, true
}

func (h *InterviewHandler) bindSession(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	actorID, ok := h.actor(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid request body")
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, ok := parseSessionID(c, req.SessionID)
	return actorID, sessionID, ok
}

func parseSessionID(c *gin.Context, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "invalid sessionId")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &id, nil
}
