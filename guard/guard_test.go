package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/session"
	"github.com/saiset-co/sai-food-admin/types"
)

type failingStore struct {
	types.SessionStore
	clearErr error
}

func (f *failingStore) Get(context.Context, string) (*types.Session, error) {
	return nil, errors.New("backend down")
}

func (f *failingStore) Clear(context.Context, string) error {
	return f.clearErr
}

func newGuard(t *testing.T, layout string) (*Guard, *session.Manager) {
	t.Helper()
	store := session.NewManagerWithBackend(context.Background(), session.NewMemoryBackend(), logger.NewNopLogger(), nil)
	require.NoError(t, store.Start())
	t.Cleanup(func() { _ = store.Stop() })
	return New(store, &types.GuardConfig{Layout: layout}, nil, logger.NewNopLogger()), store
}

func TestIsAuthenticated(t *testing.T) {
	ctx := context.Background()
	g, store := newGuard(t, LayoutClassic)

	assert.False(t, g.IsAuthenticated(ctx, ""))
	assert.False(t, g.IsAuthenticated(ctx, "unknown"))

	for _, token := range []string{"", "undefined", "null", " tok"} {
		require.NoError(t, store.Set(ctx, "s1", &types.Session{Token: token}))
		assert.False(t, g.IsAuthenticated(ctx, "s1"), "token %q", token)
	}

	require.NoError(t, store.Set(ctx, "s1", &types.Session{Token: "tok", UserID: "u1", ActiveUser: "Alice"}))
	assert.True(t, g.IsAuthenticated(ctx, "s1"))
	assert.Equal(t, Authenticated, g.State(ctx, "s1"))
}

func TestIsAuthenticated_StoreErrorFailsClosed(t *testing.T) {
	g := New(&failingStore{}, nil, nil, logger.NewNopLogger())
	assert.False(t, g.IsAuthenticated(context.Background(), "s1"))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	g, store := newGuard(t, LayoutClassic)

	assert.Equal(t, Decision{RedirectTo: "/"}, g.Resolve(ctx, types.AreaAuthenticated, "s1"))
	assert.Equal(t, Decision{Render: true}, g.Resolve(ctx, types.AreaUnauthenticated, "s1"))

	require.NoError(t, store.Set(ctx, "s1", &types.Session{Token: "tok"}))
	assert.Equal(t, Decision{Render: true}, g.Resolve(ctx, types.AreaAuthenticated, "s1"))
	assert.Equal(t, Decision{RedirectTo: "/dashboard"}, g.Resolve(ctx, types.AreaUnauthenticated, "s1"))
	assert.Equal(t, Decision{Render: true}, g.Resolve(ctx, types.AreaNone, "s1"))
}

func TestResolve_RevisedLayout(t *testing.T) {
	g, _ := newGuard(t, LayoutRevised)
	assert.Equal(t, Decision{RedirectTo: "/log-in"}, g.Resolve(context.Background(), types.AreaAuthenticated, ""))
	assert.Equal(t, []string{"/log-in", "/sign-up"}, g.Routes().Unauthenticated())
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	g, store := newGuard(t, LayoutClassic)

	require.NoError(t, store.Set(ctx, "s1", &types.Session{Token: "tok", UserID: "u1", ActiveUser: "Alice"}))
	assert.Equal(t, Decision{RedirectTo: "/"}, g.Logout(ctx, "s1"))

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	assert.Equal(t, Decision{RedirectTo: "/"}, g.Logout(ctx, "s1"))
}

func TestLogout_ClearErrorStillRedirects(t *testing.T) {
	g := New(&failingStore{clearErr: errors.New("boom")}, &types.GuardConfig{Layout: LayoutRevised}, nil, logger.NewNopLogger())
	assert.Equal(t, Decision{RedirectTo: "/log-in"}, g.Logout(context.Background(), "s1"))
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	g, store := newGuard(t, LayoutClassic)

	var states []AuthState
	unsubscribe := g.Watch(func(id string, state AuthState) {
		assert.Equal(t, "s1", id)
		states = append(states, state)
	})
	defer unsubscribe()

	require.NoError(t, store.Set(ctx, "s1", &types.Session{Token: "tok"}))
	require.NoError(t, store.Set(ctx, "s1", &types.Session{Token: "tok2"}))
	require.NoError(t, store.Clear(ctx, "s1"))
	require.NoError(t, store.Clear(ctx, "s1"))

	assert.Equal(t, []AuthState{Authenticated, Unauthenticated}, states)
}

func TestAreaOfAndNotFound(t *testing.T) {
	assert.Equal(t, types.AreaAuthenticated, AreaOf("/dashboard"))
	assert.Equal(t, types.AreaAuthenticated, AreaOf("/dashboard/nope"))
	assert.Equal(t, types.AreaUnauthenticated, AreaOf("/dashboardx"))
	assert.Equal(t, types.AreaUnauthenticated, AreaOf("/nope"))

	g, _ := newGuard(t, LayoutClassic)

	page := g.NotFound("/dashboard/nope")
	assert.Equal(t, "Dashboard Page Not Found", page.Heading)
	assert.Equal(t, "Sorry, this page does not exist in your dashboard.", page.Description)
	assert.Equal(t, "Go to Dashboard Home", page.ButtonLabel)
	assert.Equal(t, "/dashboard", page.ButtonLink)

	page = g.NotFound("/nope")
	assert.Equal(t, "Authentication Error", page.Heading)
	assert.Equal(t, "Page not found. Please login or sign up.", page.Description)
	assert.Equal(t, "Back to Login", page.ButtonLabel)
	assert.Equal(t, "/", page.ButtonLink)
	assert.Equal(t, "/nope", page.Path)
}

func TestFoodURL(t *testing.T) {
	assert.Equal(t, "/dashboard/food/42", FoodURL("42"))
}
