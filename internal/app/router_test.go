package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loadboard-service/internal/domain/auth"
	"loadboard-service/internal/domain/subscription"
	accessHandler "loadboard-service/internal/handlers/access"
	sessionHandler "loadboard-service/internal/handlers/session"
	subscriptionHandler "loadboard-service/internal/handlers/subscription"
	wsHandler "loadboard-service/internal/handlers/websocket"
	"loadboard-service/internal/middleware"
	"loadboard-service/internal/pkg/metrics"
	"loadboard-service/internal/service/access"
	"loadboard-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubCoordinator struct{ state auth.State }

func (s *stubCoordinator) State() auth.State { return s.state }
func (s *stubCoordinator) Authorize(c access.Capability) (auth.State, access.Decision) {
	return s.state, access.Decide(s.state, c)
}
func (s *stubCoordinator) SignIn(context.Context, string, string) error {
	return nil
}
func (s *stubCoordinator) SignUp(context.Context, string, string, string) error {
	return nil
}
func (s *stubCoordinator) RetryProfileCreation(context.Context, string, string, string) error {
	return nil
}
func (s *stubCoordinator) SignOut(context.Context) error        { return nil }
func (s *stubCoordinator) RefreshProfile(context.Context) error { return nil }

type stubTokens struct{ state auth.State }

func (s stubTokens) RefreshSession(context.Context) (*auth.Session, error) {
	return s.state.Session, nil
}

type stubPurchases struct{}

func (stubPurchases) Purchase(context.Context, string, string) (*subscription.PurchaseResponse, error) {
	return &subscription.PurchaseResponse{EntitlementActive: true}, nil
}

func (stubPurchases) Restore(context.Context) (*subscription.PurchaseResponse, error) {
	return &subscription.PurchaseResponse{EntitlementActive: true}, nil
}

func newRouter(state auth.State) *gin.Engine {
	gin.SetMode(gin.TestMode)
	coord := &stubCoordinator{state: state}
	logger := zap.NewNop()

	registry := prometheus.NewRegistry()
	metrics.NewMetrics(registry).Purchases.WithLabelValues("completed").Inc()

	r := gin.New()
	SetupRouter(r, &Handlers{
		SessionHandler:    sessionHandler.NewSessionHandler(coord, stubTokens{state: state}, logger),
		AccessHandler:     accessHandler.NewAccessHandler(coord),
		PurchaseHandler:   subscriptionHandler.NewPurchaseHandler(stubPurchases{}, logger),
		WSHandler:         wsHandler.NewWebSocketHandler(websocket.NewHub(coord.State, logger), []string{"*"}, logger),
		SessionMiddleware: middleware.NewSessionMiddleware(coord),
		MetricsGatherer:   registry,
	})
	return r
}

func serve(r http.Handler, method, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w.Code
}

func TestRoutesSignedOut(t *testing.T) {
	r := newRouter(auth.State{Phase: auth.PhaseSignedOut, Ready: true})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/health"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/session/state"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/listings"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/messages"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/tracking"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/subscription/purchase"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/subscription/restore"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/session/token/refresh"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/ws/stats"))
}

func TestRoutesNotReady(t *testing.T) {
	r := newRouter(auth.State{Phase: auth.PhaseResolving})

	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/api/v1/listings"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/api/v1/listings/compose"))
}

func TestRoutesSignedInWithoutPlus(t *testing.T) {
	r := newRouter(auth.State{
		Phase:   auth.PhaseSignedIn,
		Ready:   true,
		Session: &auth.Session{ID: "s1", UserID: "u1"},
	})

	assert.Equal(t, http.StatusPaymentRequired, serve(r, http.MethodGet, "/api/v1/messages"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/listings"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/subscription/restore"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/session/token/refresh"))
}

func TestTokenRefreshInterval(t *testing.T) {
	assert.Equal(t, 10*time.Minute, tokenRefreshInterval(time.Hour))
	assert.Equal(t, 10*time.Second, tokenRefreshInterval(time.Second))
}
