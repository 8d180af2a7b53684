// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

const (
	ctxUserID    = "user_id"
	ctxSessionID = "session_id"
	ctxRequestID = "request_id"
)

// GetUserID gets the signed-in user id from context
func GetUserID(c *gin.Context) (string, bool) {
	return getString(c, ctxUserID)
}

// MustGetUserID gets the user id from context or panics
func MustGetUserID(c *gin.Context) string {
	id, ok := GetUserID(c)
	if !ok {
		panic("user_id not found in context")
	}
	return id
}

// GetSessionID gets the identity session id from context
func GetSessionID(c *gin.Context) (string, bool) {
	return getString(c, ctxSessionID)
}

// GetRequestID returns the id assigned by LoggingMiddleware
func GetRequestID(c *gin.Context) string {
	id, _ := getString(c, ctxRequestID)
	return id
}

// IsAuthenticated checks if request passed a session gate
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ctxUserID)
	return exists
}

func getString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
