// Package pages serves the admin views as JSON view models. Form posts answer
// with a 303 redirect on success and re-render the view with errors otherwise.
package pages

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/api"
	"github.com/saiset-co/sai-food-admin/guard"
	"github.com/saiset-co/sai-food-admin/middleware"
	"github.com/saiset-co/sai-food-admin/server"
	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
	"github.com/saiset-co/sai-food-admin/validation"
)

const DefaultWait = 20 * time.Second

type Handler struct {
	ctx           context.Context
	api           *api.Client
	guard         *guard.Guard
	sessions      types.SessionStore
	validator     *validation.Validator
	logger        types.Logger
	routes        guard.Routes
	links         Links
	wait          time.Duration
	secureCookies bool
	now           func() time.Time
}

func New(
	ctx context.Context,
	config types.ConfigManager,
	client *api.Client,
	g *guard.Guard,
	sessions types.SessionStore,
	logger types.Logger) *Handler {
	secure := false
	if sc := config.GetConfig().Session; sc != nil && sc.Cookie != nil {
		secure = sc.Cookie.Secure
	}

	wait := DefaultWait
	if apiConfig := config.GetConfig().API; apiConfig != nil && apiConfig.Timeout > 0 {
		wait = apiConfig.Timeout + 5*time.Second
	}

	return &Handler{
		ctx:           ctx,
		api:           client,
		guard:         g,
		sessions:      sessions,
		validator:     validation.New(),
		logger:        logger,
		routes:        g.Routes(),
		links:         linksFor(g.Routes()),
		wait:          wait,
		secureCookies: secure,
		now:           time.Now,
	}
}

// Register mounts every page on the router, including the not-found fallback.
func (h *Handler) Register(router types.HTTPRouter) {
	router.GET(h.routes.Login, h.LoginPage).WithArea(types.AreaUnauthenticated)
	router.POST(h.routes.Login, h.Login).WithArea(types.AreaUnauthenticated)
	router.GET(h.routes.Signup, h.SignupPage).WithArea(types.AreaUnauthenticated)
	router.POST(h.routes.Signup, h.Signup).WithArea(types.AreaUnauthenticated)

	dash := router.Group(guard.DashboardPath).WithArea(types.AreaAuthenticated)
	dash.GET("/", h.Dashboard)
	dash.GET("/food/:id", h.FoodDetails)
	dash.POST("/food/:id", h.UpdateFood)
	dash.POST("/food/:id/delete", h.DeleteFood)
	dash.GET("/add-food", h.AddFoodPage)
	dash.POST("/add-food", h.AddFood)
	dash.POST("/logout", h.Logout)

	router.NotFound(h.NotFound)
}

func (h *Handler) NotFound(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusNotFound, h.guard.NotFound(string(ctx.Path())))
}

// requestContext bounds a page's work by its route timeout or the default wait.
func (h *Handler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	reqCtx, cancel := server.RequestContext(h.ctx, ctx)
	if _, ok := reqCtx.Deadline(); ok {
		return reqCtx, cancel
	}

	bounded, cancelBounded := context.WithTimeout(reqCtx, h.wait)
	return bounded, func() {
		cancelBounded()
		cancel()
	}
}

// session returns the stored session for the request or an empty one.
func (h *Handler) session(reqCtx context.Context, ctx *fasthttp.RequestCtx) *types.Session {
	id := middleware.SessionID(ctx)
	if id == "" {
		return &types.Session{}
	}

	s, err := h.sessions.Get(reqCtx, id)
	if err != nil {
		if !types.IsError(err, types.ErrSessionNotFound) {
			h.logger.Warn("Failed to load session", zap.Error(err))
		}
		return &types.Session{}
	}
	return s
}

// upstreamStatus picks the status a failed API call is rendered with.
func upstreamStatus(err *types.APIError) int {
	if err != nil && err.StatusCode >= 400 && err.StatusCode < 500 {
		return err.StatusCode
	}
	return fasthttp.StatusBadGateway
}

func formValue(ctx *fasthttp.RequestCtx, key string) string {
	return string(ctx.FormValue(key))
}
