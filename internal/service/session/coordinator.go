// internal/service/session/coordinator.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"loadboard-service/internal/domain/auth"
	"loadboard-service/internal/domain/subscription"
	xerrors "loadboard-service/internal/pkg/errors"
	"loadboard-service/internal/pkg/metrics"
	"loadboard-service/internal/service/access"

	"go.uber.org/zap"
)

type Options struct {
	OperationTimeout time.Duration
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	Entitlement      string
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = 12 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.Entitlement == "" {
		o.Entitlement = subscription.DefaultEntitlement
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// fetchTag identifies the session a profile fetch was issued for.
type fetchTag struct {
	sessionID string
	userID    string
	epoch     uint64
}

// Coordinator is the single writer of session, profile and entitlement
// state. Consumers read snapshots through State or Subscribe.
type Coordinator struct {
	identity IdentityProvider
	profiles ProfileStore
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu          sync.Mutex
	state       auth.State
	epoch       uint64
	eventSeq    uint64
	initialized bool
	closed      bool
	unsubscribe func()

	subMu       sync.Mutex
	subscribers map[int]chan auth.State
	nextSubID   int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewCoordinator(
	identity IdentityProvider,
	profiles ProfileStore,
	opts Options,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Coordinator {
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		identity:    identity,
		profiles:    profiles,
		opts:        opts.withDefaults(),
		metrics:     m,
		logger:      logger,
		state:       auth.State{Phase: auth.PhaseUninitialized},
		subscribers: make(map[int]chan auth.State),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// ========== Lifecycle ==========

// Initialize subscribes to session changes and probes the current session.
// Only the first call does anything. A failed probe is returned, but the
// coordinator is still marked ready in the signed-out state.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.state.Phase = auth.PhaseResolving
	seq := c.eventSeq
	c.mu.Unlock()
	c.notify()

	// the provider may deliver an event while registering, so c.mu is not held
	unsubscribe := c.identity.OnSessionChange(c.handleEvent)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return nil
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	var current *auth.Session
	err := c.call(ctx, "probe", func(ctx context.Context) error {
		var err error
		current, err = c.identity.CurrentSession(ctx)
		return err
	})

	c.mu.Lock()
	if c.eventSeq != seq {
		// a session event already superseded the probe
		c.mu.Unlock()
		return nil
	}
	if err != nil || current == nil || current.IsExpired(c.opts.Now()) {
		c.clearLocked()
		c.mu.Unlock()
		c.notify()
		if err != nil {
			c.logger.Warn("initial session probe failed, continuing signed out", zap.Error(err))
			return fmt.Errorf("initial session probe: %w", err)
		}
		return nil
	}
	c.setSessionLocked(current)
	tag := c.tagLocked()
	c.mu.Unlock()
	c.notify()

	c.loadProfile(ctx, tag, "probe")
	return nil
}

// Close releases the identity subscription and stops background fetches.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
	c.wg.Wait()

	c.subMu.Lock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.subMu.Unlock()
	return nil
}

// ========== Reads ==========

// State returns a copy of the current state.
func (c *Coordinator) State() auth.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot(c.opts.Now())
}

// Authorize evaluates the gate against one snapshot and returns both, so
// callers act on the same state the decision was made from.
func (c *Coordinator) Authorize(capability access.Capability) (auth.State, access.Decision) {
	state := c.State()
	d := access.Decide(state, capability)
	c.metrics.CapabilityChecks.WithLabelValues(string(capability), string(d.Reason)).Inc()
	return state, d
}

// HasCapability evaluates the gate against the state at call time.
func (c *Coordinator) HasCapability(capability access.Capability) bool {
	_, d := c.Authorize(capability)
	return d.Allowed
}

// Subscribe returns a channel that always holds the latest state. The
// current state is delivered immediately. Call cancel to stop.
func (c *Coordinator) Subscribe() (<-chan auth.State, func()) {
	ch := make(chan auth.State, 1)

	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.State()
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if _, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(ch)
			}
		})
	}
}

func (c *Coordinator) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	s := c.State()
	for _, ch := range c.subscribers {
		select {
		case ch <- s:
		default:
			// drop the unread snapshot, latest wins
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// ========== Identity operations ==========

// SignIn authenticates with the identity provider. State changes arrive
// only through the resulting session event.
func (c *Coordinator) SignIn(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", xerrors.ErrInvalidInput)
	}
	return c.call(ctx, "sign_in", func(ctx context.Context) error {
		return c.identity.SignInWithPassword(ctx, email, password)
	})
}

// SignUp creates the identity account and then its profile. If the profile
// write fails the returned error is a *xerrors.SignUpError.
func (c *Coordinator) SignUp(ctx context.Context, email, password, fullName string) error {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" || password == "" || fullName == "" {
		return fmt.Errorf("%w: email, password and full name are required", xerrors.ErrInvalidInput)
	}

	var userID string
	err := c.call(ctx, "sign_up", func(ctx context.Context) error {
		var err error
		userID, err = c.identity.SignUp(ctx, email, password, map[string]string{"full_name": fullName})
		return err
	})
	if err != nil {
		return err
	}

	return c.createProfile(ctx, userID, email, fullName)
}

// RetryProfileCreation repeats only the profile step of a partial sign-up.
// It never overwrites an existing profile.
func (c *Coordinator) RetryProfileCreation(ctx context.Context, userID, email, fullName string) error {
	userID = strings.TrimSpace(userID)
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if userID == "" || email == "" {
		return fmt.Errorf("%w: user id and email are required", xerrors.ErrInvalidInput)
	}

	if lookup, ok := c.identity.(IdentityLookup); ok {
		var registered string
		err := c.call(ctx, "lookup_identity", func(ctx context.Context) error {
			var err error
			registered, err = lookup.IdentityEmail(ctx, userID)
			return err
		})
		switch {
		case errors.Is(err, xerrors.ErrNotFound):
			return fmt.Errorf("%w: unknown user", xerrors.ErrInvalidInput)
		case err != nil:
			return err
		case normalizeEmail(registered) != email:
			c.logger.Warn("profile retry email does not match identity", zap.String("user_id", userID))
			return fmt.Errorf("%w: email does not match account", xerrors.ErrInvalidInput)
		}
	}

	profile := newProfile(userID, email, fullName)
	err := c.call(ctx, "create_profile", func(ctx context.Context) error {
		return c.profiles.CreateProfile(ctx, profile)
	})
	if errors.Is(err, xerrors.ErrConstraintViolation) {
		// an earlier attempt may have landed after its response was lost
		var existing *auth.Profile
		getErr := c.call(ctx, "get_profile", func(ctx context.Context) error {
			var err error
			existing, err = c.profiles.GetProfile(ctx, userID)
			return err
		})
		if getErr == nil && normalizeEmail(existing.Email) == email {
			return nil
		}
		return fmt.Errorf("%w: profile already exists", xerrors.ErrAccountExists)
	}
	if err != nil {
		c.logger.Error("profile retry failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return &xerrors.SignUpError{UserID: userID, Err: err}
	}
	return nil
}

func newProfile(userID, email, fullName string) *auth.Profile {
	return &auth.Profile{
		UserID:       userID,
		Email:        email,
		FullName:     fullName,
		IsPlusMember: false,
	}
}

func (c *Coordinator) createProfile(ctx context.Context, userID, email, fullName string) error {
	profile := newProfile(userID, email, fullName)
	err := c.call(ctx, "create_profile", func(ctx context.Context) error {
		return c.profiles.UpsertProfile(ctx, profile)
	})
	if err != nil {
		c.logger.Error("profile creation failed after sign up",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return &xerrors.SignUpError{UserID: userID, Err: err}
	}
	return nil
}

// SignOut asks the provider to end the session and clears local state
// whatever the provider answers.
func (c *Coordinator) SignOut(ctx context.Context) error {
	err := c.call(ctx, "sign_out", func(ctx context.Context) error {
		return c.identity.SignOut(ctx)
	})

	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Warn("sign out request failed, local session cleared", zap.Error(err))
		return err
	}
	return nil
}

// ========== Profile operations ==========

// RefreshProfile re-reads the profile of the current session. It is a no-op
// when signed out, and a result that arrives after the session changed is
// dropped without error.
func (c *Coordinator) RefreshProfile(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Session == nil {
		c.mu.Unlock()
		return nil
	}
	tag := c.tagLocked()
	c.mu.Unlock()

	profile, err := c.fetchProfile(ctx, tag.userID, "refresh")

	c.mu.Lock()
	if !c.tagMatchesLocked(tag) {
		c.mu.Unlock()
		c.discardStale("refresh", tag)
		return nil
	}
	switch {
	case err == nil:
		c.applyProfileLocked(profile)
	case errors.Is(err, xerrors.ErrNotFound):
		c.state.Profile = nil
		c.resolveLocked()
	default:
		// keep what we had; only a pending fetch is resolved as failed
		if c.state.Phase == auth.PhaseSignedInPending {
			c.resolveLocked()
		}
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Warn("profile refresh failed",
			zap.String("user_id", tag.userID),
			zap.Error(err),
		)
	}
	return err
}

// ReconcileEntitlement re-reads the profile after a purchase until it
// reflects the entitlement billing reported, or retries run out. It returns
// the resulting entitlement. ErrEntitlementPending means billing reported
// the purchase but the profile has not caught up yet.
func (c *Coordinator) ReconcileEntitlement(ctx context.Context, source *subscription.PurchaseResult) (bool, error) {
	c.mu.Lock()
	if c.state.Session == nil {
		c.mu.Unlock()
		return false, xerrors.ErrNotSignedIn
	}
	tag := c.tagLocked()
	c.mu.Unlock()

	expectActive := source.IsActive(c.opts.Entitlement)
	if source != nil && source.UserID != "" && source.UserID != tag.userID {
		return false, fmt.Errorf("%w: purchase belongs to %s", xerrors.ErrInvalidInput, source.UserID)
	}

	var active bool
	op := func() error {
		profile, err := c.fetchOnce(ctx, tag.userID, "reconcile")
		if err != nil {
			if xerrors.IsRetryable(err) {
				return err
			}
			return permanent(err)
		}

		c.mu.Lock()
		if !c.tagMatchesLocked(tag) {
			c.mu.Unlock()
			return permanent(errStale)
		}
		c.applyProfileLocked(profile)
		active = auth.EntitlementActive(profile, c.opts.Now())
		c.mu.Unlock()
		c.notify()

		if expectActive && !active {
			return xerrors.ErrEntitlementPending
		}
		return nil
	}

	err := c.retry(ctx, "reconcile", op)
	switch {
	case err == nil:
		c.logger.Info("entitlement reconciled",
			zap.String("user_id", tag.userID),
			zap.Bool("active", active),
		)
		return active, nil
	case errors.Is(err, errStale):
		c.discardStale("reconcile", tag)
		return false, nil
	case errors.Is(err, xerrors.ErrEntitlementPending):
		c.logger.Warn("entitlement not reflected after retries", zap.String("user_id", tag.userID))
		return false, err
	default:
		if errors.Is(err, xerrors.ErrNotFound) {
			c.mu.Lock()
			if c.tagMatchesLocked(tag) {
				c.state.Profile = nil
				c.resolveLocked()
			}
			c.mu.Unlock()
			c.notify()
		}
		return false, err
	}
}

// ========== Event handling ==========

func (c *Coordinator) handleEvent(ev auth.SessionEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.eventSeq++
	c.metrics.SessionEvents.WithLabelValues(string(ev.Type)).Inc()

	var (
		needFetch bool
		tag       fetchTag
	)
	switch {
	case ev.Type == auth.EventSignedOut || ev.Session == nil:
		c.clearLocked()
	default:
		if c.setSessionLocked(ev.Session) {
			needFetch = true
			tag = c.tagLocked()
		}
	}
	c.mu.Unlock()
	c.notify()

	c.logger.Debug("session event applied",
		zap.String("event", string(ev.Type)),
		zap.Bool("profile_fetch", needFetch),
	)

	if needFetch {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.loadProfile(c.baseCtx, tag, "session_event")
		}()
	}
}

// loadProfile resolves the pending profile for tag. Failures leave the
// session signed in with no profile.
func (c *Coordinator) loadProfile(ctx context.Context, tag fetchTag, operation string) {
	profile, err := c.fetchProfile(ctx, tag.userID, operation)

	c.mu.Lock()
	if !c.tagMatchesLocked(tag) {
		c.mu.Unlock()
		c.discardStale(operation, tag)
		return
	}
	if err != nil {
		c.state.Profile = nil
		c.resolveLocked()
	} else {
		c.applyProfileLocked(profile)
	}
	c.mu.Unlock()
	c.notify()

	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		c.logger.Error("profile fetch failed",
			zap.String("operation", operation),
			zap.String("user_id", tag.userID),
			zap.Error(err),
		)
	}
}

// ========== State helpers (c.mu held) ==========

func (c *Coordinator) tagLocked() fetchTag {
	t := fetchTag{epoch: c.epoch}
	if c.state.Session != nil {
		t.sessionID = c.state.Session.ID
		t.userID = c.state.Session.UserID
	}
	return t
}

func (c *Coordinator) tagMatchesLocked(t fetchTag) bool {
	return !c.closed && c.epoch == t.epoch && c.state.Session != nil && c.state.Session.ID == t.sessionID
}

// setSessionLocked installs s and reports whether it is a different session
// from the current one. A token refresh of the same session keeps the
// profile and any in-flight fetch.
func (c *Coordinator) setSessionLocked(s *auth.Session) bool {
	prev := c.state.Session
	c.state.Session = s.Clone()
	if prev != nil && prev.ID == s.ID && prev.UserID == s.UserID {
		return false
	}
	c.epoch++
	c.state.Profile = nil
	c.state.Phase = auth.PhaseSignedInPending
	return true
}

func (c *Coordinator) clearLocked() {
	if c.state.Session != nil {
		c.epoch++
	}
	c.state.Session = nil
	c.state.Profile = nil
	c.state.Phase = auth.PhaseSignedOut
	c.state.Ready = true
}

func (c *Coordinator) applyProfileLocked(p *auth.Profile) {
	if p == nil || c.state.Session == nil || p.UserID != c.state.Session.UserID {
		c.logger.Warn("profile does not belong to current session, ignoring")
		return
	}
	c.state.Profile = p.Clone()
	c.resolveLocked()
}

func (c *Coordinator) resolveLocked() {
	c.state.Phase = auth.PhaseSignedIn
	c.state.Ready = true
}

func (c *Coordinator) discardStale(operation string, tag fetchTag) {
	c.metrics.StaleDiscards.WithLabelValues(operation).Inc()
	c.logger.Debug("discarding result for superseded session",
		zap.String("operation", operation),
		zap.String("session_id", tag.sessionID),
	)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
