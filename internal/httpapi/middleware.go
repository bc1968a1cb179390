package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/pkg/auth"
	apperrors "github.com/momentapp/notifier/pkg/errors"
	"github.com/momentapp/notifier/pkg/logger"
)

const userIDKey = "user_id"

// AuthMiddleware verifies the bearer credential and stores the user id on
// the gin and request contexts.
func AuthMiddleware(authn auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.AuthenticateRequest(authn, c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
				"code":  string(apperrors.ErrorTypeUnauthorized),
			})
			return
		}

		c.Set(userIDKey, userID)
		ctx := auth.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(logger.WithFields(ctx, zap.String("user_id", userID)))
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func asAppError(err error, target **apperrors.AppError) bool {
	return errors.As(err, target)
}
