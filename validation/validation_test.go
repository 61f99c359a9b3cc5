package validation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0}
	gifHeader  = []byte("GIF89a\x01\x00\x01\x00")
)

func TestSignIn(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		form     SignInForm
		expected FieldErrors
	}{
		{"valid", SignInForm{Email: "a@b.co", Password: "Secret!12"}, FieldErrors{}},
		{"bad email", SignInForm{Email: "nope", Password: "Secret!12"}, FieldErrors{"email": MsgInvalidEmailAddress}},
		{"short password", SignInForm{Email: "a@b.co", Password: "S!1"}, FieldErrors{"password": MsgPasswordTooShort}},
		{"no uppercase", SignInForm{Email: "a@b.co", Password: "secret!12"}, FieldErrors{"password": MsgPasswordUpper}},
		{"no special", SignInForm{Email: "a@b.co", Password: "Secret123"}, FieldErrors{"password": MsgPasswordSpecial}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, v.SignIn(tt.form))
		})
	}
}

func TestSignUp(t *testing.T) {
	v := New()
	valid := SignUpForm{Name: "Al", Email: "a@b.co", Phone: "0123456789", Password: "Secret!12", ConfirmPassword: "Secret!12"}

	assert.Empty(t, v.SignUp(valid))

	errs := v.SignUp(SignUpForm{Email: "x", Phone: "123", Password: "Secret!12"})
	assert.Equal(t, FieldErrors{
		"name":            MsgNameRequired,
		"email":           MsgInvalidEmail,
		"phone":           MsgPhoneTooShort,
		"confirmPassword": MsgConfirmRequired,
	}, errs)

	mismatch := valid
	mismatch.ConfirmPassword = "Secret!13"
	assert.Equal(t, FieldErrors{"confirmPassword": MsgPasswordsMismatch}, v.SignUp(mismatch))

	mismatchAndShortPhone := mismatch
	mismatchAndShortPhone.Phone = "1"
	assert.Equal(t, FieldErrors{"phone": MsgPhoneTooShort}, v.SignUp(mismatchAndShortPhone))
}

func TestFood(t *testing.T) {
	v := New()
	valid := FoodForm{Name: "Pizza", Description: "Cheesy and warm", Price: "9.5", Image: pngHeader, HasImage: true}

	price, errs := v.Food(valid)
	assert.Empty(t, errs)
	assert.Equal(t, 9.5, price)

	tests := []struct {
		name   string
		mutate func(*FoodForm)
		field  string
		msg    string
	}{
		{"name", func(f *FoodForm) { f.Name = "" }, "food_name", MsgFoodNameRequired},
		{"desc", func(f *FoodForm) { f.Description = "short" }, "food_desc", MsgFoodDescTooShort},
		{"price text", func(f *FoodForm) { f.Price = "abc" }, "food_price", MsgPriceNotNumber},
		{"price empty", func(f *FoodForm) { f.Price = "" }, "food_price", MsgPriceNotNumber},
		{"price nan", func(f *FoodForm) { f.Price = "NaN" }, "food_price", MsgPriceNotNumber},
		{"price zero", func(f *FoodForm) { f.Price = "0" }, "food_price", MsgPricePositive},
		{"price negative", func(f *FoodForm) { f.Price = "-3" }, "food_price", MsgPricePositive},
		{"price infinite", func(f *FoodForm) { f.Price = "Inf" }, "food_price", MsgPriceInvalid},
		{"image missing", func(f *FoodForm) { f.Image, f.HasImage = nil, false }, "food_image", MsgImageRequired},
		{"image gif", func(f *FoodForm) { f.Image = gifHeader }, "food_image", MsgImageType},
		{"image large", func(f *FoodForm) { f.Image = append(append([]byte{}, jpegHeader...), bytes.Repeat([]byte{0}, MaxImageSize)...) }, "food_image", MsgImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid
			tt.mutate(&form)
			_, errs := v.Food(form)
			assert.Equal(t, FieldErrors{tt.field: tt.msg}, errs)
		})
	}
}

func TestFoodUpdate(t *testing.T) {
	v := New()

	_, errs := v.FoodUpdate(FoodForm{ID: "1", Name: "Pizza", Description: "Cheesy and warm", Price: "9.5"})
	assert.Empty(t, errs)

	_, errs = v.FoodUpdate(FoodForm{Name: "Pizza", Description: "Cheesy and warm", Price: "9.5", Image: jpegHeader, HasImage: true})
	assert.Equal(t, FieldErrors{"id": MsgInvalidFoodID}, errs)

	_, errs = v.FoodUpdate(FoodForm{ID: "1", Name: "Pizza", Description: "Cheesy and warm", Price: "9.5", Image: gifHeader, HasImage: true})
	assert.Equal(t, FieldErrors{"food_image": MsgImageType}, errs)
}

func TestFieldErrors(t *testing.T) {
	errs := FieldErrors{"food_name": MsgFoodNameRequired, "food_desc": MsgFoodDescTooShort}
	assert.Equal(t, "Food name is required, Description must be at least 10 characters", errs.Summary("food_name", "food_desc", "food_price"))
	assert.Error(t, errs.OrNil())
	assert.NoError(t, FieldErrors{}.OrNil())
	assert.Equal(t, "image/png", ImageContentType(pngHeader))
}
