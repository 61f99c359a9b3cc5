package middleware

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/guard"
	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

const guardLookupTimeout = 3 * time.Second

// GuardMiddleware applies the navigation guard to every route with an area.
type GuardMiddleware struct {
	ctx    context.Context
	guard  *guard.Guard
	logger types.Logger
	weight int
}

func NewGuardMiddleware(ctx context.Context, config types.ConfigManager, g *guard.Guard, logger types.Logger) *GuardMiddleware {
	return &GuardMiddleware{
		ctx:    ctx,
		guard:  g,
		logger: logger,
		weight: config.GetConfig().Middlewares.Guard.Weight,
	}
}

func (g *GuardMiddleware) Name() string { return "guard" }
func (g *GuardMiddleware) Weight() int  { return g.weight }

func (g *GuardMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), config *types.RouteConfig) {
	if config == nil || config.Area == types.AreaNone {
		next(ctx)
		return
	}

	lookupCtx, cancel := context.WithTimeout(g.ctx, guardLookupTimeout)
	decision := g.guard.Resolve(lookupCtx, config.Area, SessionID(ctx))
	cancel()

	if decision.Render {
		next(ctx)
		return
	}

	g.logger.Debug("Guard redirect",
		zap.ByteString("path", ctx.Path()),
		zap.Stringer("area", config.Area),
		zap.String("to", decision.RedirectTo))

	utils.SeeOther(ctx, decision.RedirectTo)
}
