package middleware

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-food-admin/types"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 128
)

type RequestIDMiddleware struct {
	weight int
}

func NewRequestIDMiddleware(config types.ConfigManager) *RequestIDMiddleware {
	return &RequestIDMiddleware{weight: config.GetConfig().Middlewares.RequestID.Weight}
}

func (m *RequestIDMiddleware) Name() string { return "request-id" }
func (m *RequestIDMiddleware) Weight() int  { return m.weight }

// Handle keeps an inbound X-Request-ID when it looks sane and mints one otherwise.
func (m *RequestIDMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	id := string(ctx.Request.Header.Peek(RequestIDHeader))
	if id == "" || len(id) > maxRequestIDLen {
		id = uuid.NewString()
		ctx.Request.Header.Set(RequestIDHeader, id)
	}

	ctx.SetUserValue(requestIDKey, id)
	ctx.Response.Header.Set(RequestIDHeader, id)

	next(ctx)
}

func RequestID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue(requestIDKey).(string); ok {
		return id
	}
	return string(ctx.Request.Header.Peek(RequestIDHeader))
}
