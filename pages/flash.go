package pages

import (
	"encoding/base64"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-food-admin/utils"
)

const (
	flashCookie = "food_admin_flash"
	flashMaxAge = 60
)

// setFlash stores a notice for the next page render.
func (h *Handler) setFlash(ctx *fasthttp.RequestCtx, notice *Notice) {
	if notice == nil || notice.Message == "" {
		return
	}

	data, err := utils.Marshal(notice)
	if err != nil {
		return
	}

	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)

	c.SetKey(flashCookie)
	c.SetValue(base64.RawURLEncoding.EncodeToString(data))
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(h.secureCookies)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetMaxAge(flashMaxAge)

	ctx.Response.Header.SetCookie(c)
}

// takeFlash reads the pending notice and expires it.
func (h *Handler) takeFlash(ctx *fasthttp.RequestCtx) *Notice {
	raw := ctx.Request.Header.Cookie(flashCookie)
	if len(raw) == 0 {
		return nil
	}

	ctx.Response.Header.DelClientCookie(flashCookie)

	data, err := base64.RawURLEncoding.DecodeString(string(raw))
	if err != nil {
		return nil
	}

	var notice Notice
	if err = utils.Unmarshal(data, &notice); err != nil || notice.Message == "" {
		return nil
	}
	return &notice
}
