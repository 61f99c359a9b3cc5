package pages

import (
	"io"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/api"
	"github.com/saiset-co/sai-food-admin/dashboard"
	"github.com/saiset-co/sai-food-admin/guard"
	"github.com/saiset-co/sai-food-admin/server"
	"github.com/saiset-co/sai-food-admin/utils"
	"github.com/saiset-co/sai-food-admin/validation"
)

const (
	MsgFoodAdded        = "Food item added successfully!"
	MsgFoodAddFailed    = "Failed to add food item. Please try again."
	MsgFoodUpdated      = "Food item updated successfully!"
	MsgFoodUpdateFailed = "Failed to update food item. Please try again."
	MsgFoodDeleteFailed = "Failed to delete food"
	MsgImageProcessing  = "Backend error: Failed to process image. Please contact support."
	MsgPleaseFix        = "Please fix: "

	brokenImageMarker = "Cannot read property"
)

var foodFieldOrder = []string{"food_name", "food_desc", "food_price", "food_image"}

func (h *Handler) Dashboard(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	filter := dashboard.ParseFilter(string(args.Peek("search")), string(args.Peek("min")), string(args.Peek("max")))

	previous := filter
	if args.Has("prev_search") || args.Has("prev_min") || args.Has("prev_max") {
		previous = dashboard.ParseFilter(string(args.Peek("prev_search")), string(args.Peek("prev_min")), string(args.Peek("prev_max")))
	}

	requested, err := strconv.Atoi(string(args.Peek("page")))
	if err != nil {
		requested = 1
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	s := h.session(reqCtx, ctx)

	view := DashboardView{
		Greeting:   dashboard.Greeting(h.now()),
		ActiveUser: s.ActiveUser,
		Notice:     h.takeFlash(ctx),
		Filter:     filter,
		Foods:      []FoodItem{},
		Page:       1,
		Links:      h.links,
	}

	query := h.api.GetFoods(reqCtx, api.QueryOptions{Token: s.Token})
	defer query.Unsubscribe()

	result := query.Wait(reqCtx)
	switch {
	case result.Err != nil:
		view.Error = result.Err.Message
	case result.IsLoading():
		view.Loading = true
	default:
		page := dashboard.Paginate(filter.Apply(result.Data), dashboard.ResolvePage(requested, filter, previous), dashboard.PerPage)
		for _, food := range page.Items {
			view.Foods = append(view.Foods, FoodItem{
				Food:      food,
				EditURL:   guard.FoodURL(food.ID),
				DeleteURL: guard.FoodURL(food.ID) + "/delete",
			})
		}
		view.Page = page.Page
		view.TotalPages = page.TotalPages
		if page.HasPrev {
			view.PrevURL = dashboardURL(args, page.Page-1)
		}
		if page.HasNext {
			view.NextURL = dashboardURL(args, page.Page+1)
		}
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, view)
}

// dashboardURL links to another page of the same filter. The prev_* values let
// the next request tell whether the filter was edited in between.
func dashboardURL(args *fasthttp.Args, page int) string {
	values := url.Values{}
	for _, key := range []string{"search", "min", "max"} {
		if v := string(args.Peek(key)); v != "" {
			values.Set(key, v)
			values.Set("prev_"+key, v)
		}
	}
	values.Set("page", strconv.Itoa(page))
	return guard.DashboardPath + "?" + values.Encode()
}

func (h *Handler) FoodDetails(ctx *fasthttp.RequestCtx) {
	id := server.Param(ctx, "id")

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	s := h.session(reqCtx, ctx)

	query := h.api.GetFoodByID(reqCtx, id, api.QueryOptions{Token: s.Token})
	defer query.Unsubscribe()

	view := FoodView{Notice: h.takeFlash(ctx), Links: h.links}

	result := query.Wait(reqCtx)
	switch {
	case result.Err.IsNotFound():
		h.NotFound(ctx)
		return
	case result.Err != nil:
		view.Error = result.Err.Message
	case result.IsLoading():
		view.Loading = true
	default:
		food := result.Data
		view.Food = &food
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, view)
}

func (h *Handler) UpdateFood(ctx *fasthttp.RequestCtx) {
	id := server.Param(ctx, "id")

	form, image, err := h.foodForm(ctx)
	if err != nil {
		h.logger.Warn("Unreadable food form", zap.String("id", id), zap.Error(err))
		utils.WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	form.ID = id

	view := FoodView{Values: foodValues(form), Links: h.links}

	price, errs := h.validator.FoodUpdate(form)
	if len(errs) > 0 {
		view.Errors = errs
		view.Notice = failure(MsgPleaseFix + errs.Summary(foodFieldOrder...))
		utils.WriteJSON(ctx, fasthttp.StatusUnprocessableEntity, view)
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	s := h.session(reqCtx, ctx)

	result := h.api.UpdateFood(reqCtx, id, api.FoodInput{
		Name:        form.Name,
		Description: form.Description,
		Price:       price,
		Image:       image,
	}, s.Token)

	if result.Err != nil || !result.IsSuccess() {
		view.Notice = failure(updateFailureMessage(result))
		utils.WriteJSON(ctx, upstreamStatus(result.Err), view)
		return
	}

	h.setFlash(ctx, success(orDefault(result.Data.Message, MsgFoodUpdated)))
	utils.SeeOther(ctx, guard.DashboardPath)
}

func updateFailureMessage(result api.Result[api.MessageResponse]) string {
	if result.Err == nil {
		return MsgFoodUpdateFailed
	}
	if strings.Contains(result.Err.Body, brokenImageMarker) {
		return MsgImageProcessing
	}
	return orDefault(api.ServerMessage(result.Err), MsgFoodUpdateFailed)
}

func (h *Handler) DeleteFood(ctx *fasthttp.RequestCtx) {
	id := server.Param(ctx, "id")

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	s := h.session(reqCtx, ctx)

	result := h.api.DeleteFood(reqCtx, id, s.Token)
	if result.Err != nil || !result.IsSuccess() {
		h.setFlash(ctx, failure(MsgFoodDeleteFailed))
	} else {
		h.setFlash(ctx, success(result.Data.Message))
	}

	utils.SeeOther(ctx, guard.DashboardPath)
}

func (h *Handler) AddFoodPage(ctx *fasthttp.RequestCtx) {
	utils.WriteJSON(ctx, fasthttp.StatusOK, FoodView{
		Notice: h.takeFlash(ctx),
		Links:  h.links,
	})
}

func (h *Handler) AddFood(ctx *fasthttp.RequestCtx) {
	form, image, err := h.foodForm(ctx)
	if err != nil {
		h.logger.Warn("Unreadable food form", zap.Error(err))
		utils.WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	view := FoodView{Values: foodValues(form), Links: h.links}

	price, errs := h.validator.Food(form)
	if len(errs) > 0 {
		view.Errors = errs
		utils.WriteJSON(ctx, fasthttp.StatusUnprocessableEntity, view)
		return
	}

	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	s := h.session(reqCtx, ctx)

	result := h.api.AddFood(reqCtx, api.FoodInput{
		Name:        form.Name,
		Description: form.Description,
		Price:       price,
		Image:       image,
	}, s.Token)

	if result.Err != nil || !result.IsSuccess() {
		view.Notice = failure(orDefault(api.ServerMessage(result.Err), MsgFoodAddFailed))
		utils.WriteJSON(ctx, upstreamStatus(result.Err), view)
		return
	}

	h.setFlash(ctx, success(orDefault(result.Data.Message, MsgFoodAdded)))
	utils.SeeOther(ctx, guard.DashboardPath)
}

// foodForm reads the text fields and the optional image upload. The image is
// read one byte past the limit so oversize files still fail validation.
func (h *Handler) foodForm(ctx *fasthttp.RequestCtx) (validation.FoodForm, *api.Image, error) {
	form := validation.FoodForm{
		Name:        formValue(ctx, "food_name"),
		Description: formValue(ctx, "food_desc"),
		Price:       formValue(ctx, "food_price"),
	}

	header, err := ctx.FormFile("food_image")
	if err != nil {
		if err == fasthttp.ErrMissingFile || err == fasthttp.ErrNoMultipartForm {
			return form, nil, nil
		}
		return form, nil, err
	}

	data, err := readUpload(header)
	if err != nil {
		return form, nil, err
	}

	form.Image = data
	form.HasImage = true

	return form, &api.Image{
		Filename:    header.Filename,
		ContentType: validation.ImageContentType(data),
		Data:        data,
	}, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, validation.MaxImageSize+1))
}

func foodValues(form validation.FoodForm) map[string]string {
	return map[string]string{
		"food_name":  form.Name,
		"food_desc":  form.Description,
		"food_price": form.Price,
	}
}
