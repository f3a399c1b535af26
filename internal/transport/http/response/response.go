package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeValidation       = "validation_error"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeInvalidState     = "invalid_state"
	CodeConflict         = "conflict"
	CodeGenerationFailed = "generation_failed"
	CodeTimeout          = "timeout"
	CodeInternal         = "internal_error"
)

type ErrorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConflictBody struct {
	Success bool        `json:"success"`
	Code    string      `json:"code"`
	Latest  interface{} `json:"latest"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Error(c *gin.Context, httpStatus int, code, message string) {
	c.JSON(httpStatus, ErrorBody{
		Success: false,
		Code:    code,
		Message: message,
	})
}

// Conflict hands the latest persisted state back to the client.
func Conflict(c *gin.Context, latest interface{}) {
	c.JSON(http.StatusConflict, ConflictBody{
		Success: false,
		Code:    CodeConflict,
		Latest:  latest,
	})
}
