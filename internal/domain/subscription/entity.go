// internal/domain/subscription/entity.go
package subscription

import "time"

const (
	DefaultProductID   = "$rc_monthly"
	DefaultEntitlement = "plus"
)

// EntitlementInfo is the billing provider's view of one entitlement.
type EntitlementInfo struct {
	Identifier string     `json:"identifier"`
	ProductID  string     `json:"product_identifier"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_date,omitempty"`
}

// PurchaseResult is what billing reports after a successful purchase.
type PurchaseResult struct {
	UserID       string                     `json:"app_user_id"`
	ProductID    string                     `json:"product_id"`
	Entitlements map[string]EntitlementInfo `json:"entitlements"`
	PurchasedAt  time.Time                  `json:"purchased_at"`
}

// IsActive reports whether billing asserts the entitlement as active.
func (r *PurchaseResult) IsActive(entitlement string) bool {
	if r == nil {
		return false
	}
	e, ok := r.Entitlements[entitlement]
	return ok && e.Active
}
