package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// statusFor maps an application error to its HTTP status.
func statusFor(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrorTypeForbidden:
		return http.StatusForbidden
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err and records it on the context for the request logger.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	message := "internal server error"
	var appErr *apperrors.AppError
	if status != http.StatusInternalServerError && asAppError(err, &appErr) {
		message = appErr.Message
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": message,
		"code":  string(apperrors.TypeOf(err)),
	})
}
