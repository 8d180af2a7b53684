// internal/service/subscription/purchase_service.go
package subscription

import (
	"context"
	"errors"
	"strings"

	"loadboard-service/internal/domain/auth"
	"loadboard-service/internal/domain/subscription"
	xerrors "loadboard-service/internal/pkg/errors"
	"loadboard-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

// Billing submits purchases to the billing service and reads back what it
// holds for a subscriber.
type Billing interface {
	Purchase(ctx context.Context, userID, productID, receipt string) (*subscription.PurchaseResult, error)
	Subscriber(ctx context.Context, userID string) (*subscription.PurchaseResult, error)
}

// Reconciler is the part of the session coordinator a purchase needs.
type Reconciler interface {
	State() auth.State
	ReconcileEntitlement(ctx context.Context, source *subscription.PurchaseResult) (bool, error)
}

type PurchaseService struct {
	billing          Billing
	sessions         Reconciler
	defaultProductID string
	entitlement      string
	metrics          *metrics.Metrics
	logger           *zap.Logger
}

func NewPurchaseService(
	billing Billing,
	sessions Reconciler,
	defaultProductID string,
	entitlement string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PurchaseService {
	if defaultProductID == "" {
		defaultProductID = subscription.DefaultProductID
	}
	if entitlement == "" {
		entitlement = subscription.DefaultEntitlement
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseService{
		billing:          billing,
		sessions:         sessions,
		defaultProductID: defaultProductID,
		entitlement:      entitlement,
		metrics:          m,
		logger:           logger,
	}
}

// Purchase buys productID for the signed-in user and waits for the profile
// to reflect the entitlement. A purchase billing accepted but the profile
// has not caught up with yet is reported as pending, not as a failure.
func (s *PurchaseService) Purchase(ctx context.Context, productID, receipt string) (*subscription.PurchaseResponse, error) {
	state := s.sessions.State()
	if state.Session == nil {
		return nil, xerrors.ErrNotSignedIn
	}
	userID := state.Session.UserID

	productID = strings.TrimSpace(productID)
	if productID == "" {
		productID = s.defaultProductID
	}

	result, err := s.billing.Purchase(ctx, userID, productID, receipt)
	if err != nil {
		s.metrics.Purchases.WithLabelValues(purchaseOutcome(err)).Inc()
		if errors.Is(err, xerrors.ErrUserCancelled) {
			s.logger.Info("purchase cancelled", zap.String("user_id", userID))
		} else {
			s.logger.Error("purchase failed",
				zap.String("user_id", userID),
				zap.String("product_id", productID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	return s.settle(ctx, userID, productID, result, "completed")
}

// Restore re-reads the signed-in user's entitlements from billing and
// reconciles them into the profile. It is how a purchase made on another
// device, or one whose reconcile gave up, becomes visible.
func (s *PurchaseService) Restore(ctx context.Context) (*subscription.PurchaseResponse, error) {
	state := s.sessions.State()
	if state.Session == nil {
		return nil, xerrors.ErrNotSignedIn
	}
	userID := state.Session.UserID

	result, err := s.billing.Subscriber(ctx, userID)
	if err != nil {
		s.metrics.Purchases.WithLabelValues("restore_failed").Inc()
		s.logger.Error("restore failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	if result == nil {
		result = &subscription.PurchaseResult{UserID: userID}
	}
	productID := ""
	if e, ok := result.Entitlements[s.entitlement]; ok {
		productID = e.ProductID
	}
	return s.settle(ctx, userID, productID, result, "restored")
}

// settle reconciles an entitlement billing has reported for userID.
func (s *PurchaseService) settle(ctx context.Context, userID, productID string, result *subscription.PurchaseResult, outcome string) (*subscription.PurchaseResponse, error) {
	resp := &subscription.PurchaseResponse{
		ProductID:     productID,
		BillingActive: result.IsActive(s.entitlement),
	}
	if !resp.BillingActive {
		s.metrics.Purchases.WithLabelValues("inactive").Inc()
		s.logger.Warn("billing did not grant entitlement",
			zap.String("user_id", userID),
			zap.String("entitlement", s.entitlement),
		)
		resp.EntitlementActive = s.sessions.State().EntitlementActive
		return resp, nil
	}

	active, err := s.sessions.ReconcileEntitlement(ctx, result)
	switch {
	case err == nil:
		resp.EntitlementActive = active
		s.metrics.Purchases.WithLabelValues(outcome).Inc()
	case errors.Is(err, xerrors.ErrEntitlementPending):
		resp.Pending = true
		s.metrics.Purchases.WithLabelValues("pending").Inc()
	default:
		s.metrics.Purchases.WithLabelValues("reconcile_failed").Inc()
		return resp, err
	}

	s.logger.Info("entitlement settled",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.String("outcome", outcome),
		zap.Bool("entitlement_active", resp.EntitlementActive),
		zap.Bool("pending", resp.Pending),
	)
	return resp, nil
}

func purchaseOutcome(err error) string {
	switch {
	case errors.Is(err, xerrors.ErrUserCancelled):
		return "cancelled"
	case errors.Is(err, xerrors.ErrNetwork), errors.Is(err, xerrors.ErrTimeout):
		return "network"
	default:
		return "failed"
	}
}
