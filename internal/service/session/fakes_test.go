package session

import (
	"context"
	"sync"
	"time"

	"loadboard-service/internal/domain/auth"
	xerrors "loadboard-service/internal/pkg/errors"
)

// ---------- identity provider ----------

type fakeIdentity struct {
	mu             sync.Mutex
	handlers       map[int]func(auth.SessionEvent)
	nextHandler    int
	subscribeCalls int

	current      *auth.Session
	currentErr   error
	probeStarted chan struct{}
	probeGate    chan struct{}

	nextSession  *auth.Session
	signInErr    error
	signUpID     string
	signUpErr    error
	identities   map[string]string
	signUpCalls  int
	signOutErr   error
	signOutCalls int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		handlers:   make(map[int]func(auth.SessionEvent)),
		identities: make(map[string]string),
	}
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password string, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUpCalls++
	if f.signUpErr == nil {
		f.identities[f.signUpID] = email
	}
	return f.signUpID, f.signUpErr
}

func (f *fakeIdentity) IdentityEmail(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.identities[userID]
	if !ok {
		return "", xerrors.ErrNotFound
	}
	return email, nil
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) error {
	f.mu.Lock()
	err, s := f.signInErr, f.nextSession
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if s != nil {
		f.emit(auth.SessionEvent{Type: auth.EventSignedIn, Session: s})
	}
	return nil
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	err := f.signOutErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.emit(auth.SessionEvent{Type: auth.EventSignedOut})
	return nil
}

func (f *fakeIdentity) CurrentSession(ctx context.Context) (*auth.Session, error) {
	f.mu.Lock()
	started, gate := f.probeStarted, f.probeGate
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone(), f.currentErr
}

func (f *fakeIdentity) OnSessionChange(fn func(auth.SessionEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	id := f.nextHandler
	f.nextHandler++
	f.handlers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

// emit delivers ev synchronously to every subscriber.
func (f *fakeIdentity) emit(ev auth.SessionEvent) {
	f.mu.Lock()
	handlers := make([]func(auth.SessionEvent), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (f *fakeIdentity) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// ---------- profile store ----------

type getResult struct {
	profile *auth.Profile
	err     error
}

type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]*auth.Profile
	queued    map[string][]getResult
	gates     map[string]chan struct{}
	gets      map[string]int
	upsertErr error
	upserts   []*auth.Profile
	creates   []*auth.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles: make(map[string]*auth.Profile),
		queued:   make(map[string][]getResult),
		gates:    make(map[string]chan struct{}),
		gets:     make(map[string]int),
	}
}

func (f *fakeProfiles) put(p *auth.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserID] = p.Clone()
}

func (f *fakeProfiles) remove(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.profiles, userID)
}

// queue scripts the next GetProfile results for userID, in order.
func (f *fakeProfiles) queue(userID string, results ...getResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[userID] = append(f.queued[userID], results...)
}

// block makes GetProfile for userID wait until the returned func is called.
func (f *fakeProfiles) block(userID string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[userID] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeProfiles) getCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[userID]
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*auth.Profile, error) {
	f.mu.Lock()
	f.gets[userID]++
	gate := f.gates[userID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if q := f.queued[userID]; len(q) > 0 {
		f.queued[userID] = q[1:]
		return q[0].profile.Clone(), q[0].err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakeProfiles) UpsertProfile(ctx context.Context, p *auth.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, p.Clone())
	f.profiles[p.UserID] = p.Clone()
	return nil
}

func (f *fakeProfiles) CreateProfile(ctx context.Context, p *auth.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if _, ok := f.profiles[p.UserID]; ok {
		return xerrors.ErrConstraintViolation
	}
	f.creates = append(f.creates, p.Clone())
	f.profiles[p.UserID] = p.Clone()
	return nil
}

// ---------- clock ----------

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
}

func (k *testClock) Now() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.now
}

func (k *testClock) Advance(d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.now = k.now.Add(d)
}
