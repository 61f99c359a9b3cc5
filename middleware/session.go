package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
)

const (
	sessionIDKey     = "session_id"
	sessionIssuerKey = "session_issuer"
)

// SessionMiddleware binds each browser to a session id carried in a cookie.
// The record behind the id lives in the session store.
type SessionMiddleware struct {
	logger types.Logger
	cookie types.SessionCookieConfig
	weight int
}

func NewSessionMiddleware(config types.ConfigManager, logger types.Logger) *SessionMiddleware {
	cookie := types.SessionCookieConfig{Name: "food_admin_session", Path: "/"}
	if sc := config.GetConfig().Session; sc != nil && sc.Cookie != nil {
		cookie = *sc.Cookie
		if cookie.Path == "" {
			cookie.Path = "/"
		}
	}

	return &SessionMiddleware{
		logger: logger,
		cookie: cookie,
		weight: config.GetConfig().Middlewares.Session.Weight,
	}
}

func (s *SessionMiddleware) Name() string { return "session" }
func (s *SessionMiddleware) Weight() int  { return s.weight }

func (s *SessionMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	id := string(ctx.Request.Header.Cookie(s.cookie.Name))
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
		s.setCookie(ctx, id)
		s.logger.Debug("Session cookie issued", zap.String("request_id", RequestID(ctx)))
	}

	ctx.SetUserValue(sessionIDKey, id)
	ctx.SetUserValue(sessionIssuerKey, s.setCookie)
	next(ctx)
}

func (s *SessionMiddleware) setCookie(ctx *fasthttp.RequestCtx, id string) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)

	c.SetKey(s.cookie.Name)
	c.SetValue(id)
	c.SetPath(s.cookie.Path)
	c.SetDomain(s.cookie.Domain)
	c.SetHTTPOnly(true)
	c.SetSecure(s.cookie.Secure)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	if s.cookie.MaxAge > 0 {
		c.SetMaxAge(int(s.cookie.MaxAge / time.Second))
	}

	ctx.Response.Header.SetCookie(c)
}

// RotateSession binds a fresh session id to the request and re-issues the
// cookie. It returns the new id; the caller moves or clears the old record.
func RotateSession(ctx *fasthttp.RequestCtx) string {
	id := uuid.NewString()
	ctx.SetUserValue(sessionIDKey, id)

	if issue, ok := ctx.UserValue(sessionIssuerKey).(func(*fasthttp.RequestCtx, string)); ok {
		issue(ctx, id)
	}

	return id
}

// SessionID returns the id bound by the session middleware, or "" when it did not run.
func SessionID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue(sessionIDKey).(string); ok {
		return id
	}
	return ""
}
