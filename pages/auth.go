package pages

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/api"
	"github.com/saiset-co/sai-food-admin/middleware"
	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
	"github.com/saiset-co/sai-food-admin/validation"
)

const (
	MsgLoginSuccess     = "Login successful!"
	MsgLoginFailed      = "Login failed."
	MsgUnexpectedStatus = "Unexpected response status"
	MsgSignupSuccess    = "Sign up successful!"
	MsgSignupFailed     = "Sign up failed."

	pageLogin  = "login"
	pageSignup = "signup"
)

func (h *Handler) LoginPage(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, AuthView{
		Page:   pageLogin,
		Notice: h.takeFlash(ctx),
		Links:  h.links,
	})
}

func (h *Handler) Login(ctx *fasthttp.RequestCtx) {
	form := validation.SignInForm{
		Email:    formValue(ctx, "email"),
		Password: formValue(ctx, "password"),
	}

	view := AuthView{
		Page:   pageLogin,
		Values: map[string]string{"email": form.Email},
		Links:  h.links,
	}

	if errs := h.validator.SignIn(form); len(errs) > 0 {
		view.Errors = errs
		utils.WriteJSON(ctx, fasthttp.StatusUnprocessableEntity, view)
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result := h.api.SignIn(reqCtx, api.SignInRequest{Email: form.Email, Password: form.Password})
	if result.Err != nil {
		view.Notice = failure(MsgLoginFailed)
		utils.WriteJSON(ctx, upstreamStatus(result.Err), view)
		return
	}

	if !result.IsSuccess() {
		view.Notice = failure(MsgLoginFailed)
		utils.WriteJSON(ctx, fasthttp.StatusGatewayTimeout, view)
		return
	}

	resp := result.Data
	if !resp.Succeeded() {
		view.Notice = failure(orDefault(resp.Message, MsgUnexpectedStatus))
		utils.WriteJSON(ctx, fasthttp.StatusUnauthorized, view)
		return
	}

	previousID := middleware.SessionID(ctx)
	sessionID := middleware.RotateSession(ctx)
	err := h.sessions.Set(reqCtx, sessionID, &types.Session{
		Token:      resp.Token,
		UserID:     resp.UserID,
		ActiveUser: resp.ActiveUser,
	})
	if err != nil {
		h.logger.Error("Failed to store session after sign-in", zap.Error(err))
		view.Notice = failure(MsgLoginFailed)
		utils.WriteJSON(ctx, fasthttp.StatusInternalServerError, view)
		return
	}

	if previousID != "" {
		if err = h.sessions.Clear(reqCtx, previousID); err != nil {
			h.logger.Warn("Failed to clear pre-login session", zap.Error(err))
		}
	}

	h.setFlash(ctx, success(orDefault(resp.Message, MsgLoginSuccess)))
	utils.SeeOther(ctx, h.routes.AuthenticatedDefault())
}

func (h *Handler) SignupPage(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, AuthView{
		Page:   pageSignup,
		Notice: h.takeFlash(ctx),
		Links:  h.links,
	})
}

func (h *Handler) Signup(ctx *fasthttp.RequestCtx) {
	form := validation.SignUpForm{
		Name:            formValue(ctx, "name"),
		Email:           formValue(ctx, "email"),
		Phone:           formValue(ctx, "phone"),
		Password:        formValue(ctx, "password"),
		ConfirmPassword: formValue(ctx, "confirmPassword"),
	}

	view := AuthView{
		Page: pageSignup,
		Values: map[string]string{
			"name":  form.Name,
			"email": form.Email,
			"phone": form.Phone,
		},
		Links: h.links,
	}

	if errs := h.validator.SignUp(form); len(errs) > 0 {
		view.Errors = errs
		utils.WriteJSON(ctx, fasthttp.StatusUnprocessableEntity, view)
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result := h.api.SignUp(reqCtx, api.SignUpRequest{
		Name:     form.Name,
		Email:    form.Email,
		Phone:    form.Phone,
		Password: form.Password,
	})
	if result.Err != nil {
		view.Notice = failure(orDefault(api.ServerMessage(result.Err), MsgSignupFailed))
		utils.WriteJSON(ctx, upstreamStatus(result.Err), view)
		return
	}

	if !result.IsSuccess() {
		view.Notice = failure(MsgSignupFailed)
		utils.WriteJSON(ctx, fasthttp.StatusGatewayTimeout, view)
		return
	}

	h.setFlash(ctx, success(orDefault(result.Data.Message, MsgSignupSuccess)))
	utils.SeeOther(ctx, h.routes.UnauthenticatedDefault())
}

// Logout clears the session and always lands on the login page.
func (h *Handler) Logout(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	decision := h.guard.Logout(reqCtx, middleware.SessionID(ctx))
	utils.SeeOther(ctx, decision.RedirectTo)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
