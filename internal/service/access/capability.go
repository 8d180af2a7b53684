// internal/service/access/capability.go
package access

import (
	"fmt"

	"loadboard-service/internal/domain/auth"
)

// Capability is an action a consumer may attempt.
type Capability string

const (
	BrowseListings  Capability = "browse_listings"
	CreateListing   Capability = "create_listing"
	Messaging       Capability = "messaging"
	VehicleTracking Capability = "vehicle_tracking"
	PlusBadge       Capability = "plus_badge"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonOK        Reason = "ok"
	ReasonNotReady  Reason = "not_ready"
	ReasonSignedOut Reason = "signed_out"
	ReasonUpsell    Reason = "upsell"
)

// Decision is the outcome of a capability check.
type Decision struct {
	Capability Capability `json:"capability"`
	Allowed    bool       `json:"allowed"`
	Reason     Reason     `json:"reason"`
}

var requiresPlus = map[Capability]bool{
	BrowseListings:  false,
	CreateListing:   true,
	Messaging:       true,
	VehicleTracking: true,
	PlusBadge:       true,
}

// All lists every capability in a stable order.
func All() []Capability {
	return []Capability{BrowseListings, CreateListing, Messaging, VehicleTracking, PlusBadge}
}

// Parse resolves a capability name.
func Parse(name string) (Capability, error) {
	c := Capability(name)
	if _, ok := requiresPlus[c]; !ok {
		return "", fmt.Errorf("unknown capability %q", name)
	}
	return c, nil
}

// Decide evaluates cap against a state snapshot. Nothing is allowed before
// the state is ready.
func Decide(state auth.State, c Capability) Decision {
	d := Decision{Capability: c}
	switch {
	case !state.Ready:
		d.Reason = ReasonNotReady
	case !requiresPlus[c]:
		d.Allowed, d.Reason = true, ReasonOK
	case !state.SignedIn():
		d.Reason = ReasonSignedOut
	case !state.EntitlementActive:
		d.Reason = ReasonUpsell
	default:
		d.Allowed, d.Reason = true, ReasonOK
	}
	return d
}

// HasCapability is Decide reduced to a bool.
func HasCapability(state auth.State, c Capability) bool {
	return Decide(state, c).Allowed
}
