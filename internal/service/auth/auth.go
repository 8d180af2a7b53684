// internal/service/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"loadboard-service/internal/domain/auth"
	xerrors "loadboard-service/internal/pkg/errors"
	"loadboard-service/internal/pkg/jwt"
	"loadboard-service/internal/pkg/session"
	"loadboard-service/internal/repository/postgres"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService is the local email/password identity provider. Credentials
// live in postgres, sessions in redis, and every session change is
// published on the device's redis channel.
type AuthService struct {
	authRepo       *postgres.AuthRepository
	jwtManager     *jwt.Manager
	sessionManager *session.Manager
	rateLimiter    *session.RateLimiter
	deviceID       string
	sessionTTL     time.Duration
	logger         *zap.Logger

	mu          sync.Mutex
	handlers    map[int]func(auth.SessionEvent)
	nextHandler int
	pubsub      *redis.PubSub
	listening   chan struct{}
}

func NewAuthService(
	authRepo *postgres.AuthRepository,
	jwtManager *jwt.Manager,
	sessionManager *session.Manager,
	rateLimiter *session.RateLimiter,
	deviceID string,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		authRepo:       authRepo,
		jwtManager:     jwtManager,
		sessionManager: sessionManager,
		rateLimiter:    rateLimiter,
		deviceID:       deviceID,
		sessionTTL:     sessionTTL,
		logger:         logger,
		handlers:       make(map[int]func(auth.SessionEvent)),
	}
}

// ========== Registration ==========

// SignUp creates an identity and returns its user id. It does not sign in.
func (s *AuthService) SignUp(ctx context.Context, email, password string, attrs map[string]string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidatePassword(password); err != nil {
		return "", err
	}

	exists, err := s.authRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return "", xerrors.ErrAccountExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &auth.Identity{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		FullName:     attrs["full_name"],
	}
	if err := s.authRepo.CreateIdentity(ctx, identity); err != nil {
		// lost a race with a concurrent sign-up for the same email
		if errors.Is(err, xerrors.ErrConstraintViolation) {
			return "", xerrors.ErrAccountExists
		}
		return "", fmt.Errorf("failed to create identity: %w", err)
	}

	s.logger.Info("identity created", zap.String("user_id", identity.ID))
	return identity.ID, nil
}

// IdentityEmail returns the registered email of userID.
func (s *AuthService) IdentityEmail(ctx context.Context, userID string) (string, error) {
	identity, err := s.authRepo.FindIdentityByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return identity.Email, nil
}

// ========== Sign in / out ==========

// SignInWithPassword verifies credentials and starts a new session. The
// result is announced as a signed_in event.
func (s *AuthService) SignInWithPassword(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	allowed, _, err := s.rateLimiter.CheckSignInAttempt(ctx, email)
	if err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return xerrors.ErrTooManyAttempts
	}

	identity, err := s.authRepo.FindIdentityByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to find identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return xerrors.ErrInvalidCredentials
	}

	if err := s.authRepo.UpdateIdentityLastLogin(ctx, identity.ID); err != nil {
		s.logger.Error("failed to update last login", zap.Error(err))
	}
	if err := s.rateLimiter.ResetSignInAttempts(ctx, email); err != nil {
		s.logger.Warn("failed to reset sign-in attempts", zap.Error(err))
	}

	data, err := s.startSession(ctx, identity)
	if err != nil {
		return err
	}

	return s.publish(ctx, auth.EventSignedIn, data.ToSession())
}

func (s *AuthService) startSession(ctx context.Context, identity *auth.Identity) (*session.SessionData, error) {
	now := time.Now()
	sessionID := ulid.Make().String()

	accessToken, accessExp, err := s.jwtManager.Generator.GenerateAccessToken(identity.ID, sessionID, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.jwtManager.Generator.GenerateRefreshToken(identity.ID, sessionID, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	data := &session.SessionData{
		ID:              sessionID,
		UserID:          identity.ID,
		Email:           identity.Email,
		DeviceID:        s.deviceID,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: accessExp,
		LoginAt:         now,
		LastActivityAt:  now,
		ExpiresAt:       now.Add(s.sessionTTL),
	}

	if err := s.sessionManager.CreateSession(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.sessionManager.SetCurrent(ctx, s.deviceID, sessionID, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("failed to set current session: %w", err)
	}

	s.logger.Info("session started",
		zap.String("user_id", identity.ID),
		zap.String("session_id", sessionID),
	)
	return data, nil
}

// SignOut ends the device's current session, if any
func (s *AuthService) SignOut(ctx context.Context) error {
	current, err := s.sessionManager.CurrentSession(ctx, s.deviceID)
	if err != nil {
		return fmt.Errorf("failed to read current session: %w", err)
	}
	if current == nil {
		return nil
	}

	if err := s.sessionManager.InvalidateSession(ctx, s.deviceID, current.ID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	s.logger.Info("session ended",
		zap.String("user_id", current.UserID),
		zap.String("session_id", current.ID),
	)
	return s.publish(ctx, auth.EventSignedOut, nil)
}

// ========== Session reads ==========

// CurrentSession returns the device's session, refreshing an expired
// access token first.
func (s *AuthService) CurrentSession(ctx context.Context) (*auth.Session, error) {
	current, err := s.sessionManager.CurrentSession(ctx, s.deviceID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	if !time.Now().Before(current.AccessExpiresAt) {
		return s.refresh(ctx, current)
	}
	return current.ToSession(), nil
}

// RefreshSession re-issues the access token of the current session.
func (s *AuthService) RefreshSession(ctx context.Context) (*auth.Session, error) {
	current, err := s.sessionManager.CurrentSession(ctx, s.deviceID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, xerrors.ErrNotSignedIn
	}
	return s.refresh(ctx, current)
}

func (s *AuthService) refresh(ctx context.Context, current *session.SessionData) (*auth.Session, error) {
	if _, err := s.jwtManager.Verifier.VerifyRefreshToken(current.RefreshToken, current.ID); err != nil {
		s.logger.Warn("refresh token rejected, ending session",
			zap.String("session_id", current.ID),
			zap.Error(err),
		)
		if err := s.sessionManager.InvalidateSession(ctx, s.deviceID, current.ID); err != nil {
			return nil, err
		}
		return nil, s.publish(ctx, auth.EventSignedOut, nil)
	}

	accessToken, accessExp, err := s.jwtManager.Generator.GenerateAccessToken(current.UserID, current.ID, current.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	current.AccessToken = accessToken
	current.AccessExpiresAt = accessExp
	current.LastActivityAt = time.Now()
	if err := s.sessionManager.CreateSession(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to store refreshed session: %w", err)
	}

	refreshed := current.ToSession()
	if err := s.publish(ctx, auth.EventTokenRefreshed, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// RunTokenRefresher refreshes the current access token shortly before it
// expires, until ctx is done.
func (s *AuthService) RunTokenRefresher(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := s.sessionManager.CurrentSession(ctx, s.deviceID)
			if err != nil || current == nil {
				continue
			}
			if time.Until(current.AccessExpiresAt) > 2*every {
				continue
			}
			if _, err := s.refresh(ctx, current); err != nil {
				s.logger.Warn("background token refresh failed", zap.Error(err))
			}
		}
	}
}

// ========== Session events ==========

func (s *AuthService) publish(ctx context.Context, typ auth.SessionEventType, sess *auth.Session) error {
	ev := auth.SessionEvent{
		ID:         ulid.Make().String(),
		Type:       typ,
		Session:    sess,
		OccurredAt: time.Now(),
	}
	if err := s.sessionManager.Publish(ctx, s.deviceID, ev); err != nil {
		return fmt.Errorf("failed to publish %s: %w", typ, err)
	}
	return nil
}

// OnSessionChange registers fn for session events. Events are delivered one
// at a time, in publish order, from a single listener goroutine.
func (s *AuthService) OnSessionChange(fn func(auth.SessionEvent)) func() {
	s.mu.Lock()
	id := s.nextHandler
	s.nextHandler++
	s.handlers[id] = fn
	if s.pubsub == nil {
		s.startListenerLocked()
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
		})
	}
}

func (s *AuthService) startListenerLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, err := s.sessionManager.Subscribe(ctx, s.deviceID)
	if err != nil {
		s.logger.Error("failed to subscribe to session events", zap.Error(err))
		return
	}
	s.pubsub = ps
	s.listening = make(chan struct{})
	go s.listen(ps, s.listening)
}

func (s *AuthService) listen(ps *redis.PubSub, done chan struct{}) {
	defer close(done)

	for msg := range ps.Channel() {
		ev, err := session.DecodeEvent(msg.Payload)
		if err != nil {
			s.logger.Warn("dropping malformed session event", zap.Error(err))
			continue
		}
		for _, fn := range s.snapshotHandlers() {
			fn(ev)
		}
	}
}

func (s *AuthService) snapshotHandlers() []func(auth.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(auth.SessionEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.handlers[id])
	}
	return fns
}

// Close stops event delivery.
func (s *AuthService) Close() error {
	s.mu.Lock()
	ps, done := s.pubsub, s.listening
	s.pubsub = nil
	s.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
