// internal/domain/auth/state.go
package auth

import "time"

// Phase is the coordinator lifecycle as observed by consumers.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseResolving       Phase = "resolving"
	PhaseSignedOut       Phase = "signed_out"
	PhaseSignedInPending Phase = "signed_in_pending"
	PhaseSignedIn        Phase = "signed_in"
)

// State is the read-only snapshot handed to consumers. Reads taken while
// Ready is false are indeterminate.
type State struct {
	Phase             Phase    `json:"phase"`
	Session           *Session `json:"session,omitempty"`
	Profile           *Profile `json:"profile,omitempty"`
	EntitlementActive bool     `json:"entitlement_active"`
	Ready             bool     `json:"ready"`
}

// SignedIn reports whether a session is current.
func (s State) SignedIn() bool {
	return s.Session != nil
}

// Snapshot copies the state and recomputes the entitlement at now.
func (s State) Snapshot(now time.Time) State {
	out := State{
		Phase:   s.Phase,
		Session: s.Session.Clone(),
		Profile: s.Profile.Clone(),
		Ready:   s.Ready,
	}
	out.EntitlementActive = out.Session != nil && EntitlementActive(out.Profile, now)
	return out
}
