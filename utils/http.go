package utils

import (
	"github.com/valyala/fasthttp"
)

const ContentTypeJSON = "application/json; charset=utf-8"

func setNoCache(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	if requestID := ctx.Request.Header.Peek("X-Request-ID"); len(requestID) > 0 {
		ctx.Response.Header.SetBytesV("X-Request-ID", requestID)
	}
}

// WriteJSON renders v as the response body. Encoding failures fall back to a 500.
func WriteJSON(ctx *fasthttp.RequestCtx, statusCode int, v interface{}) {
	body, err := Marshal(v)
	if err != nil {
		CreateErrorResponse(ctx)
		return
	}

	setNoCache(ctx)
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType(ContentTypeJSON)
	ctx.SetBody(body)
}

func WriteError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	WriteJSON(ctx, statusCode, map[string]string{
		"error":   fasthttp.StatusMessage(statusCode),
		"message": message,
	})
}

// SeeOther redirects with 303 so a POST is followed by a GET.
func SeeOther(ctx *fasthttp.RequestCtx, location string) {
	setNoCache(ctx)
	ctx.Response.Header.Set(fasthttp.HeaderLocation, location)
	ctx.SetStatusCode(fasthttp.StatusSeeOther)
}

func CreateErrorResponse(ctx *fasthttp.RequestCtx) {
	setNoCache(ctx)
	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	ctx.SetContentType(ContentTypeJSON)
	ctx.SetBodyString(`{"error":"Internal Server Error","message":"An unexpected error occurred"}`)
}

func CreateBodyTooLargeResponse(ctx *fasthttp.RequestCtx) {
	setNoCache(ctx)
	ctx.SetStatusCode(fasthttp.StatusRequestEntityTooLarge)
	ctx.SetContentType(ContentTypeJSON)
	ctx.SetBodyString(`{"error":"Request Entity Too Large","message":"Request body exceeds the allowed size"}`)
}
