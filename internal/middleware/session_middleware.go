// internal/middleware/session_middleware.go
package middleware

import (
	"net/http"

	"loadboard-service/internal/domain/auth"
	"loadboard-service/internal/pkg/response"
	"loadboard-service/internal/service/access"

	"github.com/gin-gonic/gin"
)

// StateReader is satisfied by the session coordinator.
type StateReader interface {
	State() auth.State
	Authorize(c access.Capability) (auth.State, access.Decision)
}

type SessionMiddleware struct {
	sessions StateReader
}

func NewSessionMiddleware(sessions StateReader) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// RequireSignedIn rejects requests until the coordinator is ready and holds
// a session. The session's user id is placed on the context.
func (m *SessionMiddleware) RequireSignedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := m.sessions.State()
		if !state.Ready {
			response.Error(c, http.StatusServiceUnavailable, "session state is still resolving", nil,
				gin.H{"reason": access.ReasonNotReady})
			return
		}
		if !state.SignedIn() {
			response.Error(c, http.StatusUnauthorized, "sign in required", nil,
				gin.H{"reason": access.ReasonSignedOut})
			return
		}

		setSessionContext(c, state)
		c.Next()
	}
}

// RequireCapability gates a route on a capability. Signed-in users without
// an active PLUS entitlement get 402 so the client can show the upsell.
func (m *SessionMiddleware) RequireCapability(capability access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, d := m.sessions.Authorize(capability)

		switch d.Reason {
		case access.ReasonOK:
			setSessionContext(c, state)
			c.Next()
		case access.ReasonNotReady:
			response.Error(c, http.StatusServiceUnavailable, "session state is still resolving", nil, d)
		case access.ReasonSignedOut:
			response.Error(c, http.StatusUnauthorized, "sign in required", nil, d)
		default:
			response.Error(c, http.StatusPaymentRequired, "PLUS membership required", nil, d)
		}
	}
}

func setSessionContext(c *gin.Context, state auth.State) {
	if state.Session == nil {
		return
	}
	c.Set(ctxUserID, state.Session.UserID)
	c.Set(ctxSessionID, state.Session.ID)
}
