// internal/domain/subscription/dto.go
package subscription

// PurchaseRequest is sent by the paywall after the store sheet completes
type PurchaseRequest struct {
	ProductID    string `json:"product_id"`
	ReceiptToken string `json:"receipt_token" binding:"required"`
}

// PurchaseResponse reports the reconciled entitlement
type PurchaseResponse struct {
	ProductID         string `json:"product_id"`
	BillingActive     bool   `json:"billing_active"`
	EntitlementActive bool   `json:"entitlement_active"`
	Pending           bool   `json:"pending"`
}
