// internal/service/navigation/navigator.go
package navigation

import (
	"sync"

	"loadboard-service/internal/domain/auth"

	"go.uber.org/zap"
)

// Target is the top-level screen stack a UI shell should display.
type Target string

const (
	Indeterminate      Target = "indeterminate"
	PublicStack        Target = "public_stack"
	AuthenticatedStack Target = "authenticated_stack"
)

// Route maps a state snapshot to its target. Nothing is decided before the
// state is ready.
func Route(state auth.State) Target {
	switch {
	case !state.Ready:
		return Indeterminate
	case state.Session == nil:
		return PublicStack
	default:
		return AuthenticatedStack
	}
}

// Navigator applies routes to a shell, moving only when the target changes.
type Navigator struct {
	mu       sync.Mutex
	current  Target
	navigate func(Target)
	logger   *zap.Logger
}

func NewNavigator(navigate func(Target), logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		current:  Indeterminate,
		navigate: navigate,
		logger:   logger,
	}
}

// Apply routes state and reports whether it navigated.
func (n *Navigator) Apply(state auth.State) bool {
	target := Route(state)

	n.mu.Lock()
	if target == Indeterminate || target == n.current {
		n.mu.Unlock()
		return false
	}
	from := n.current
	n.current = target
	n.mu.Unlock()

	n.logger.Info("navigating",
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	if n.navigate != nil {
		n.navigate(target)
	}
	return true
}

// Current returns the last target navigated to.
func (n *Navigator) Current() Target {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}
