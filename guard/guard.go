package guard

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/session"
	"github.com/saiset-co/sai-food-admin/types"
)

type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticated
)

func (s AuthState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Decision is the outcome of evaluating a navigation: render it or redirect.
type Decision struct {
	Render     bool
	RedirectTo string
}

func render() Decision {
	return Decision{Render: true}
}

func redirect(to string) Decision {
	return Decision{RedirectTo: to}
}

type Guard struct {
	store     types.SessionStore
	routes    Routes
	inspector *session.TokenInspector
	logger    types.Logger
}

func New(store types.SessionStore, config *types.GuardConfig, token *types.TokenConfig, logger types.Logger) *Guard {
	layout := LayoutClassic
	if config != nil && config.Layout != "" {
		layout = config.Layout
	}

	return &Guard{
		store:     store,
		routes:    RoutesFor(layout),
		inspector: session.NewTokenInspector(token),
		logger:    logger,
	}
}

func (g *Guard) Routes() Routes {
	return g.routes
}

// IsAuthenticated fails closed: any store error or unusable token means false.
func (g *Guard) IsAuthenticated(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	s, err := g.store.Get(ctx, sessionID)
	if err != nil || s == nil {
		if err != nil && !types.IsError(err, types.ErrSessionNotFound) {
			g.logger.Warn("Session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return false
	}

	return g.inspector.Usable(s.Token)
}

func (g *Guard) State(ctx context.Context, sessionID string) AuthState {
	if g.IsAuthenticated(ctx, sessionID) {
		return Authenticated
	}
	return Unauthenticated
}

func (g *Guard) Resolve(ctx context.Context, area types.RouteArea, sessionID string) Decision {
	switch area {
	case types.AreaUnauthenticated:
		if g.IsAuthenticated(ctx, sessionID) {
			return redirect(g.routes.AuthenticatedDefault())
		}
	case types.AreaAuthenticated:
		if !g.IsAuthenticated(ctx, sessionID) {
			return redirect(g.routes.UnauthenticatedDefault())
		}
	}
	return render()
}

// Logout always ends on the login page, even if clearing the session fails.
func (g *Guard) Logout(ctx context.Context, sessionID string) Decision {
	if sessionID != "" {
		if err := g.store.Clear(ctx, sessionID); err != nil {
			g.logger.Error("Failed to clear session on logout", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return redirect(g.routes.UnauthenticatedDefault())
}

func (g *Guard) NotFound(path string) NotFoundPage {
	return g.routes.NotFound(AreaOf(path), path)
}

// Watch reports auth state transitions per session id.
func (g *Guard) Watch(fn func(sessionID string, state AuthState)) func() {
	var mu sync.Mutex
	last := make(map[string]AuthState)

	return g.store.Subscribe(func(event types.SessionEvent) {
		next := Unauthenticated
		if event.Kind == types.SessionEventSet && event.Session != nil && g.inspector.Usable(event.Session.Token) {
			next = Authenticated
		}

		mu.Lock()
		prev, seen := last[event.ID]
		if next == Unauthenticated {
			delete(last, event.ID)
		} else {
			last[event.ID] = next
		}
		mu.Unlock()

		if !seen {
			prev = Unauthenticated
		}
		if prev != next {
			fn(event.ID, next)
		}
	})
}
