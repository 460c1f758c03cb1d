package response

import (
	"errors"
	"log"
	"net/http"

	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	userID, err := uuid.Parse(userIDStr.(string))
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// GetRequestMeta collects the client address and user agent recorded in audit trails.
func GetRequestMeta(c *gin.Context) dto.RequestMeta {
	return dto.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	// Log internal errors
	if code == http.StatusInternalServerError {
		log.Printf("[Internal Error]: %v", err)
		c.JSON(code, gin.H{"error": apperror.ErrInternal.Error()})
		return
	}

	message := err.Error()
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}

	if errors.Is(err, apperror.ErrDuplicateRequest) {
		c.JSON(code, gin.H{"error": message, "warning": true})
		return
	}

	c.JSON(code, gin.H{"error": message})
}
