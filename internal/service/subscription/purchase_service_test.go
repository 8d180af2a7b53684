package subscription

import (
	"context"
	"testing"

	"loadboard-service/internal/domain/auth"
	"loadboard-service/internal/domain/subscription"
	xerrors "loadboard-service/internal/pkg/errors"
	"loadboard-service/internal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBilling struct {
	result    *subscription.PurchaseResult
	err       error
	userID    string
	productID string
	lookups   int
}

func (b *stubBilling) Purchase(ctx context.Context, userID, productID, receipt string) (*subscription.PurchaseResult, error) {
	b.userID, b.productID = userID, productID
	return b.result, b.err
}

func (b *stubBilling) Subscriber(ctx context.Context, userID string) (*subscription.PurchaseResult, error) {
	b.userID = userID
	b.lookups++
	return b.result, b.err
}

type stubSessions struct {
	state      auth.State
	active     bool
	err        error
	reconciled int
}

func (s *stubSessions) State() auth.State { return s.state }

func (s *stubSessions) ReconcileEntitlement(ctx context.Context, source *subscription.PurchaseResult) (bool, error) {
	s.reconciled++
	return s.active, s.err
}

func signedIn() auth.State {
	return auth.State{
		Phase:   auth.PhaseSignedIn,
		Ready:   true,
		Session: &auth.Session{ID: "s1", UserID: "u1"},
	}
}

func granted() *subscription.PurchaseResult {
	return &subscription.PurchaseResult{
		UserID: "u1",
		Entitlements: map[string]subscription.EntitlementInfo{
			"plus": {Identifier: "plus", Active: true},
		},
	}
}

func TestPurchaseRequiresSession(t *testing.T) {
	billing := &stubBilling{}
	svc := NewPurchaseService(billing, &stubSessions{state: auth.State{Ready: true}}, "", "", nil, nil)

	_, err := svc.Purchase(context.Background(), "", "receipt")
	assert.ErrorIs(t, err, xerrors.ErrNotSignedIn)
	assert.Empty(t, billing.userID)
}

func TestPurchaseReconcilesGrantedEntitlement(t *testing.T) {
	billing := &stubBilling{result: granted()}
	sessions := &stubSessions{state: signedIn(), active: true}
	m := metrics.NewNop()
	svc := NewPurchaseService(billing, sessions, "", "", m, nil)

	resp, err := svc.Purchase(context.Background(), "", "receipt")
	require.NoError(t, err)

	assert.Equal(t, "u1", billing.userID)
	assert.Equal(t, subscription.DefaultProductID, billing.productID)
	assert.Equal(t, 1, sessions.reconciled)
	assert.True(t, resp.BillingActive)
	assert.True(t, resp.EntitlementActive)
	assert.False(t, resp.Pending)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Purchases.WithLabelValues("completed")))
}

func TestPurchasePendingWhenProfileLags(t *testing.T) {
	sessions := &stubSessions{state: signedIn(), err: xerrors.ErrEntitlementPending}
	svc := NewPurchaseService(&stubBilling{result: granted()}, sessions, "", "", nil, nil)

	resp, err := svc.Purchase(context.Background(), "$rc_annual", "receipt")
	require.NoError(t, err)
	assert.True(t, resp.Pending)
	assert.False(t, resp.EntitlementActive)
	assert.Equal(t, "$rc_annual", resp.ProductID)
}

func TestPurchaseSkipsReconcileWhenBillingInactive(t *testing.T) {
	sessions := &stubSessions{state: signedIn()}
	svc := NewPurchaseService(&stubBilling{result: &subscription.PurchaseResult{UserID: "u1"}}, sessions, "", "", nil, nil)

	resp, err := svc.Purchase(context.Background(), "", "receipt")
	require.NoError(t, err)
	assert.False(t, resp.BillingActive)
	assert.Equal(t, 0, sessions.reconciled)
}

func TestPurchaseBillingErrorsPassThrough(t *testing.T) {
	for _, want := range []error{xerrors.ErrUserCancelled, xerrors.ErrPurchaseFailed, xerrors.ErrNetwork} {
		t.Run(want.Error(), func(t *testing.T) {
			sessions := &stubSessions{state: signedIn()}
			svc := NewPurchaseService(&stubBilling{err: want}, sessions, "", "", nil, nil)

			_, err := svc.Purchase(context.Background(), "", "receipt")
			assert.ErrorIs(t, err, want)
			assert.Equal(t, 0, sessions.reconciled)
		})
	}
}

func TestPurchaseReconcileFailureIsReturned(t *testing.T) {
	sessions := &stubSessions{state: signedIn(), err: xerrors.ErrNotFound}
	svc := NewPurchaseService(&stubBilling{result: granted()}, sessions, "", "", nil, nil)

	resp, err := svc.Purchase(context.Background(), "", "receipt")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	require.NotNil(t, resp)
	assert.True(t, resp.BillingActive)
}

func TestRestoreReconcilesBillingEntitlement(t *testing.T) {
	result := granted()
	result.Entitlements["plus"] = subscription.EntitlementInfo{Identifier: "plus", ProductID: "$rc_annual", Active: true}
	billing := &stubBilling{result: result}
	sessions := &stubSessions{state: signedIn(), active: true}
	m := metrics.NewNop()
	svc := NewPurchaseService(billing, sessions, "", "", m, nil)

	resp, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", billing.userID)
	assert.Equal(t, 1, billing.lookups)
	assert.Equal(t, 1, sessions.reconciled)
	assert.Equal(t, "$rc_annual", resp.ProductID)
	assert.True(t, resp.EntitlementActive)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Purchases.WithLabelValues("restored")))
}

func TestRestoreWithoutEntitlementSkipsReconcile(t *testing.T) {
	sessions := &stubSessions{state: signedIn()}
	svc := NewPurchaseService(&stubBilling{result: &subscription.PurchaseResult{UserID: "u1"}}, sessions, "", "", nil, nil)

	resp, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.BillingActive)
	assert.False(t, resp.EntitlementActive)
	assert.Equal(t, 0, sessions.reconciled)
}

func TestRestoreRequiresSessionAndReportsBillingErrors(t *testing.T) {
	billing := &stubBilling{}
	svc := NewPurchaseService(billing, &stubSessions{state: auth.State{Ready: true}}, "", "", nil, nil)
	_, err := svc.Restore(context.Background())
	assert.ErrorIs(t, err, xerrors.ErrNotSignedIn)
	assert.Zero(t, billing.lookups)

	sessions := &stubSessions{state: signedIn()}
	svc = NewPurchaseService(&stubBilling{err: xerrors.ErrNetwork}, sessions, "", "", nil, nil)
	_, err = svc.Restore(context.Background())
	assert.ErrorIs(t, err, xerrors.ErrNetwork)
	assert.Equal(t, 0, sessions.reconciled)
}
