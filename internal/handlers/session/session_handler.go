// internal/handlers/session/session_handler.go
package session

import (
	"context"
	"errors"
	"net/http"

	"loadboard-service/internal/domain/auth"
	xerrors "loadboard-service/internal/pkg/errors"
	"loadboard-service/internal/pkg/response"
	"loadboard-service/internal/service/navigation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Coordinator is the slice of the session coordinator the handler drives.
type Coordinator interface {
	State() auth.State
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, fullName string) error
	RetryProfileCreation(ctx context.Context, userID, email, fullName string) error
	SignOut(ctx context.Context) error
	RefreshProfile(ctx context.Context) error
}

// TokenRefresher re-issues the access token of the provider's current
// session. The new session reaches the coordinator as a token_refreshed
// event.
type TokenRefresher interface {
	RefreshSession(ctx context.Context) (*auth.Session, error)
}

type SessionHandler struct {
	sessions Coordinator
	tokens   TokenRefresher
	logger   *zap.Logger
}

func NewSessionHandler(sessions Coordinator, tokens TokenRefresher, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// ========== State ==========

// GetState returns the current snapshot. Clients should treat it as
// indeterminate while ready is false.
func (h *SessionHandler) GetState(c *gin.Context) {
	response.Success(c, http.StatusOK, "session state", h.sessions.State())
}

// GetRoute returns the top-level stack the UI shell should show.
func (h *SessionHandler) GetRoute(c *gin.Context) {
	state := h.sessions.State()
	response.Success(c, http.StatusOK, "route", gin.H{
		"target": navigation.Route(state),
		"ready":  state.Ready,
	})
}

// ========== Sign in / sign up ==========

// SignIn starts a password sign-in. The session arrives through the
// identity provider's event, so the returned state may still be pending.
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req auth.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		h.logger.Warn("sign in failed", zap.String("email", req.Email), zap.Error(err))
		response.FromError(c, "sign in failed", err)
		return
	}

	response.Success(c, http.StatusOK, "sign in accepted", h.sessions.State())
}

// SignUp creates the identity and its profile. When only the profile write
// fails the response carries the user id for RetryProfile.
func (h *SessionHandler) SignUp(c *gin.Context) {
	var req auth.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.sessions.SignUp(c.Request.Context(), req.Email, req.Password, req.FullName); err != nil {
		h.logger.Warn("sign up failed", zap.String("email", req.Email), zap.Error(err))
		response.FromError(c, "sign up failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "account created", h.sessions.State())
}

// RetryProfile re-runs only the profile step of a partial sign-up.
func (h *SessionHandler) RetryProfile(c *gin.Context) {
	var req auth.RetryProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	err := h.sessions.RetryProfileCreation(c.Request.Context(), req.UserID, req.Email, req.FullName)
	if err != nil {
		h.logger.Warn("profile retry failed", zap.String("user_id", req.UserID), zap.Error(err))
		response.FromError(c, "profile creation failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "profile created", gin.H{"user_id": req.UserID})
}

// ========== Sign out / refresh ==========

// SignOut always clears local state; a provider failure is reported after.
func (h *SessionHandler) SignOut(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		h.logger.Warn("provider sign out failed", zap.Error(err))
		response.FromError(c, "signed out locally", err)
		return
	}

	response.Success(c, http.StatusOK, "signed out", h.sessions.State())
}

// Refresh re-reads the profile for the current session.
func (h *SessionHandler) Refresh(c *gin.Context) {
	if err := h.sessions.RefreshProfile(c.Request.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Warn("profile refresh failed", zap.Error(err))
		response.FromError(c, "profile refresh failed", err)
		return
	}

	response.Success(c, http.StatusOK, "profile refreshed", h.sessions.State())
}

// RefreshToken rotates the access token now instead of waiting for the
// background refresher. A rejected refresh token ends the session.
func (h *SessionHandler) RefreshToken(c *gin.Context) {
	refreshed, err := h.tokens.RefreshSession(c.Request.Context())
	if err != nil {
		h.logger.Warn("token refresh failed", zap.Error(err))
		response.FromError(c, "token refresh failed", err)
		return
	}
	if refreshed == nil {
		response.FromError(c, "session ended", xerrors.ErrNotSignedIn)
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", refreshed)
}
