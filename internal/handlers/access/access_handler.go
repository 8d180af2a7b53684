// internal/handlers/access/access_handler.go
package access

import (
	"net/http"

	"loadboard-service/internal/domain/auth"
	"loadboard-service/internal/middleware"
	"loadboard-service/internal/pkg/response"
	"loadboard-service/internal/service/access"

	"github.com/gin-gonic/gin"
)

// Gate is satisfied by the session coordinator.
type Gate interface {
	State() auth.State
	Authorize(c access.Capability) (auth.State, access.Decision)
}

type AccessHandler struct {
	gate Gate
}

func NewAccessHandler(gate Gate) *AccessHandler {
	return &AccessHandler{gate: gate}
}

// CheckCapability answers whether the capability is usable right now and
// why not when it isn't.
func (h *AccessHandler) CheckCapability(c *gin.Context) {
	capability, err := access.Parse(c.Param("capability"))
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}

	_, d := h.gate.Authorize(capability)
	response.Success(c, http.StatusOK, "capability decision", d)
}

// ListCapabilities evaluates every capability against one snapshot.
func (h *AccessHandler) ListCapabilities(c *gin.Context) {
	state := h.gate.State()
	decisions := make([]access.Decision, 0, len(access.All()))
	for _, capability := range access.All() {
		decisions = append(decisions, access.Decide(state, capability))
	}

	response.Success(c, http.StatusOK, "capability decisions", decisions)
}

// Probe is mounted behind RequireCapability; reaching it means the gate let
// the request through.
func (h *AccessHandler) Probe(capability access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.GetUserID(c)
		response.Success(c, http.StatusOK, "access granted", gin.H{
			"capability": capability,
			"user_id":    userID,
		})
	}
}
