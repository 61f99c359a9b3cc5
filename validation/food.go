package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MaxImageSize = 5 * 1024 * 1024

	MsgFoodNameRequired = "Food name is required"
	MsgFoodDescTooShort = "Description must be at least 10 characters"
	MsgPriceNotNumber   = "Price must be a number"
	MsgPricePositive    = "Price must be positive"
	MsgPriceInvalid     = "Price must be a valid number"
	MsgImageRequired    = "Image is required"
	MsgImageType        = "File must be an image (PNG, JPEG, JPG)"
	MsgImageTooLarge    = "Image must be less than 5MB"
	MsgInvalidFoodID    = "Invalid food ID"
)

var allowedImageTypes = []string{"image/png", "image/jpeg"}

// FoodForm is the raw add/edit submission. Price stays a string until parsed.
type FoodForm struct {
	ID          string
	Name        string
	Description string
	Price       string
	Image       []byte
	HasImage    bool
}

type foodFields struct {
	Name        string  `form:"food_name" validate:"min=1"`
	Description string  `form:"food_desc" validate:"min=10"`
	Price       float64 `form:"food_price" validate:"gt=0,finite"`
}

var foodMessages = map[string]string{
	"food_name.min":     MsgFoodNameRequired,
	"food_desc.min":     MsgFoodDescTooShort,
	"food_price.gt":     MsgPricePositive,
	"food_price.finite": MsgPriceInvalid,
}

// Food validates an add submission, which must carry an image. It returns the
// parsed price alongside any field errors.
func (v *Validator) Food(form FoodForm) (float64, FieldErrors) {
	price, errs := v.foodFields(form)

	if msg := v.imageMessage(form, true); msg != "" {
		errs["food_image"] = msg
	}

	return price, errs
}

// FoodUpdate validates an edit. The image is optional; when present it must
// pass the same checks as on add.
func (v *Validator) FoodUpdate(form FoodForm) (float64, FieldErrors) {
	price, errs := v.foodFields(form)

	if strings.TrimSpace(form.ID) == "" {
		errs["id"] = MsgInvalidFoodID
	}

	if msg := v.imageMessage(form, false); msg != "" {
		errs["food_image"] = msg
	}

	return price, errs
}

func (v *Validator) foodFields(form FoodForm) (float64, FieldErrors) {
	price, parseErr := parsePrice(form.Price)

	errs := v.check(foodFields{
		Name:        form.Name,
		Description: form.Description,
		Price:       price,
	}, foodMessages)

	if parseErr {
		errs["food_price"] = MsgPriceNotNumber
	}

	return price, errs
}

func (v *Validator) imageMessage(form FoodForm, required bool) string {
	if !form.HasImage || len(form.Image) == 0 {
		if required {
			return MsgImageRequired
		}
		return ""
	}

	if !mimetype.EqualsAny(mimetype.Detect(form.Image).String(), allowedImageTypes...) {
		return MsgImageType
	}

	if len(form.Image) > MaxImageSize {
		return MsgImageTooLarge
	}

	return ""
}

// ImageContentType reports the sniffed content type of an upload.
func ImageContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

// parsePrice reports true when raw is not a number at all. NaN counts as
// not a number; infinities parse and are rejected later as invalid.
func parsePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}

	price, err := strconv.ParseFloat(raw, 64)
	if errors.Is(err, strconv.ErrSyntax) || math.IsNaN(price) {
		return 0, true
	}

	return price, false
}
