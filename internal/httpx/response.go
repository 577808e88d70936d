package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fretefacil/mdfe-backend/internal/apperr"
)

// Envelope is the single response shape used by every endpoint.
// Success: {success:true, data}. Failure: {success:false, message, errorCode, details}.
type Envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Message   string            `json:"message,omitempty"`
	ErrorCode string            `json:"errorCode,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// JSON writes a success envelope.
func JSON(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

// Error writes a failure envelope from an explicit code/message pair.
func Error(c *gin.Context, status int, code, message string, details map[string]string) {
	c.JSON(status, Envelope{Success: false, Message: message, ErrorCode: code, Details: details})
}

// AppError translates any error into the envelope using the apperr taxonomy.
func AppError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	c.JSON(appErr.HTTPStatus, Envelope{
		Success:   false,
		Message:   appErr.Message,
		ErrorCode: appErr.Code,
		Details:   appErr.Details,
	})
}

// BindError reports a malformed request body.
func BindError(c *gin.Context, err error) {
	Error(c, http.StatusBadRequest, apperr.CodeValidation, "corpo da requisição inválido: "+err.Error(), nil)
}
