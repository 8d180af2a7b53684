package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"loadboard-service/internal/domain/auth"
	xerrors "loadboard-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCoordinator struct {
	state      auth.State
	signInErr  error
	signUpErr  error
	retryErr   error
	signOutErr error
	refreshErr error

	signInEmail string
	retryUserID string
	signedOut   bool
}

func (f *fakeCoordinator) State() auth.State { return f.state }

func (f *fakeCoordinator) SignIn(ctx context.Context, email, password string) error {
	f.signInEmail = email
	return f.signInErr
}

func (f *fakeCoordinator) SignUp(ctx context.Context, email, password, fullName string) error {
	return f.signUpErr
}

func (f *fakeCoordinator) RetryProfileCreation(ctx context.Context, userID, email, fullName string) error {
	f.retryUserID = userID
	return f.retryErr
}

func (f *fakeCoordinator) SignOut(ctx context.Context) error {
	f.signedOut = true
	f.state = auth.State{Phase: auth.PhaseSignedOut, Ready: true}
	return f.signOutErr
}

func (f *fakeCoordinator) RefreshProfile(ctx context.Context) error { return f.refreshErr }

type fakeTokens struct {
	session *auth.Session
	err     error
	calls   int
}

func (f *fakeTokens) RefreshSession(ctx context.Context) (*auth.Session, error) {
	f.calls++
	return f.session, f.err
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func setup(f *fakeCoordinator) *gin.Engine {
	return setupWithTokens(f, &fakeTokens{})
}

func setupWithTokens(f *fakeCoordinator, tokens *fakeTokens) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSessionHandler(f, tokens, zap.NewNop())

	r := gin.New()
	r.GET("/session/state", h.GetState)
	r.GET("/session/route", h.GetRoute)
	r.POST("/session/sign-in", h.SignIn)
	r.POST("/session/sign-up", h.SignUp)
	r.POST("/session/sign-up/profile", h.RetryProfile)
	r.POST("/session/sign-out", h.SignOut)
	r.POST("/session/refresh", h.Refresh)
	r.POST("/session/token/refresh", h.RefreshToken)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestGetStateAndRoute(t *testing.T) {
	f := &fakeCoordinator{state: auth.State{
		Phase:   auth.PhaseSignedIn,
		Ready:   true,
		Session: &auth.Session{ID: "s1", UserID: "u1"},
	}}
	r := setup(f)

	w, env := do(t, r, http.MethodGet, "/session/state", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var st auth.State
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "u1", st.Session.UserID)

	w, env = do(t, r, http.MethodGet, "/session/route", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"target":"authenticated_stack","ready":true}`, string(env.Data))
}

func TestGetStateOmitsTokens(t *testing.T) {
	f := &fakeCoordinator{state: auth.State{
		Phase:   auth.PhaseSignedIn,
		Ready:   true,
		Session: &auth.Session{ID: "s1", UserID: "u1", AccessToken: "acc-123", RefreshToken: "ref-456"},
	}}

	w, env := do(t, setup(f), http.MethodGet, "/session/state", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "acc-123")
	assert.NotContains(t, w.Body.String(), "ref-456")

	var body struct {
		Session map[string]json.RawMessage `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Contains(t, body.Session, "user_id")
	assert.NotContains(t, body.Session, "access_token")
	assert.NotContains(t, body.Session, "refresh_token")
}

func TestSignIn(t *testing.T) {
	f := &fakeCoordinator{}
	r := setup(f)

	w, _ := do(t, r, http.MethodPost, "/session/sign-in", map[string]string{
		"email": "a@b.test", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@b.test", f.signInEmail)
}

func TestSignInErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad password", xerrors.ErrInvalidCredentials, http.StatusUnauthorized},
		{"rate limited", xerrors.ErrTooManyAttempts, http.StatusTooManyRequests},
		{"timeout", xerrors.ErrTimeout, http.StatusGatewayTimeout},
		{"network", xerrors.ErrNetwork, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setup(&fakeCoordinator{signInErr: tt.err})
			w, env := do(t, r, http.MethodPost, "/session/sign-in", map[string]string{
				"email": "a@b.test", "password": "secret123",
			})
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestSignInRejectsMalformedBody(t *testing.T) {
	r := setup(&fakeCoordinator{})
	w, _ := do(t, r, http.MethodPost, "/session/sign-in", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignUpPartialFailureReturnsUserID(t *testing.T) {
	f := &fakeCoordinator{signUpErr: &xerrors.SignUpError{UserID: "u9", Err: xerrors.ErrNetwork}}
	r := setup(f)

	w, env := do(t, r, http.MethodPost, "/session/sign-up", map[string]string{
		"email": "a@b.test", "password": "secret123", "full_name": "Ann",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"user_id":"u9"}`, string(env.Data))
}

func TestSignUpConflictAndWeakPassword(t *testing.T) {
	body := map[string]string{"email": "a@b.test", "password": "x", "full_name": "Ann"}

	w, _ := do(t, setup(&fakeCoordinator{signUpErr: xerrors.ErrAccountExists}), http.MethodPost, "/session/sign-up", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, setup(&fakeCoordinator{signUpErr: xerrors.ErrWeakPassword}), http.MethodPost, "/session/sign-up", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRetryProfile(t *testing.T) {
	f := &fakeCoordinator{}
	r := setup(f)

	w, _ := do(t, r, http.MethodPost, "/session/sign-up/profile", map[string]string{
		"user_id": "u9", "email": "a@b.test", "full_name": "Ann",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u9", f.retryUserID)
}

func TestSignOutReportsProviderFailureAfterClearing(t *testing.T) {
	f := &fakeCoordinator{signOutErr: xerrors.ErrNetwork}
	r := setup(f)

	w, _ := do(t, r, http.MethodPost, "/session/sign-out", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, f.signedOut)
	assert.False(t, f.State().SignedIn())
}

func TestRefresh(t *testing.T) {
	w, _ := do(t, setup(&fakeCoordinator{}), http.MethodPost, "/session/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, setup(&fakeCoordinator{refreshErr: xerrors.ErrTimeout}), http.MethodPost, "/session/refresh", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestRefreshToken(t *testing.T) {
	tokens := &fakeTokens{session: &auth.Session{ID: "s1", UserID: "u1", AccessToken: "rotated-acc", RefreshToken: "ref"}}
	w, env := do(t, setupWithTokens(&fakeCoordinator{}, tokens), http.MethodPost, "/session/token/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, tokens.calls)
	assert.NotContains(t, w.Body.String(), "rotated-acc")

	var s auth.Session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "s1", s.ID)

	// a rejected refresh token ends the session without an error
	w, _ = do(t, setupWithTokens(&fakeCoordinator{}, &fakeTokens{}), http.MethodPost, "/session/token/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, setupWithTokens(&fakeCoordinator{}, &fakeTokens{err: xerrors.ErrNotSignedIn}), http.MethodPost, "/session/token/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
