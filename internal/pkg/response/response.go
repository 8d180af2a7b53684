// internal/pkg/response/response.go
package response

import (
	"errors"
	"net/http"

	"loadboard-service/internal/domain/auth"
	xerrors "loadboard-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort before writing so later handlers in the chain never run
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}

var statusBySentinel = []struct {
	err    error
	status int
}{
	// SignUpError unwraps to ErrProfileWriteFailed as well as the cause, so
	// it must be matched before the causes below.
	{xerrors.ErrProfileWriteFailed, http.StatusBadGateway},
	{xerrors.ErrInvalidCredentials, http.StatusUnauthorized},
	{xerrors.ErrNotSignedIn, http.StatusUnauthorized},
	{xerrors.ErrTooManyAttempts, http.StatusTooManyRequests},
	{xerrors.ErrAccountExists, http.StatusConflict},
	{xerrors.ErrUserCancelled, http.StatusConflict},
	{xerrors.ErrWeakPassword, http.StatusUnprocessableEntity},
	{xerrors.ErrInvalidInput, http.StatusBadRequest},
	{xerrors.ErrNotFound, http.StatusNotFound},
	{xerrors.ErrPurchaseFailed, http.StatusPaymentRequired},
	{xerrors.ErrEntitlementPending, http.StatusAccepted},
	{xerrors.ErrTimeout, http.StatusGatewayTimeout},
	{xerrors.ErrNetwork, http.StatusServiceUnavailable},
}

// StatusFor maps a service error onto an HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// FromError writes err with the status StatusFor picks. A partial sign-up
// carries the orphaned user id so the client can retry the profile step.
func FromError(c *gin.Context, message string, err error) {
	var signUpErr *xerrors.SignUpError
	if errors.As(err, &signUpErr) {
		Error(c, http.StatusBadGateway, message, err, auth.SignUpFailure{UserID: signUpErr.UserID})
		return
	}
	Error(c, StatusFor(err), message, err)
}
