package validation

const (
	MsgInvalidEmailAddress = "Invalid email address"
	MsgInvalidEmail        = "Invalid email"
	MsgPasswordTooShort    = "Password must be at least 8 characters"
	MsgPasswordUpper       = "Must contain at least one uppercase letter"
	MsgPasswordSpecial     = "Must contain at least one special character"
	MsgNameRequired        = "Name is required"
	MsgPhoneTooShort       = "Phone number is too short"
	MsgConfirmRequired     = "Confirm Password is required"
	MsgPasswordsMismatch   = "Passwords do not match"
)

type SignInForm struct {
	Email    string `form:"email" validate:"email"`
	Password string `form:"password" validate:"min=8,has_upper,has_special"`
}

type SignUpForm struct {
	Name            string `form:"name" validate:"min=1"`
	Email           string `form:"email" validate:"email"`
	Phone           string `form:"phone" validate:"min=10"`
	Password        string `form:"password" validate:"min=8,has_upper,has_special"`
	ConfirmPassword string `form:"confirmPassword" validate:"min=8"`
}

var passwordMessages = map[string]string{
	"password.min":         MsgPasswordTooShort,
	"password.has_upper":   MsgPasswordUpper,
	"password.has_special": MsgPasswordSpecial,
}

var signInMessages = merge(passwordMessages, map[string]string{
	"email.email": MsgInvalidEmailAddress,
})

var signUpMessages = merge(passwordMessages, map[string]string{
	"name.min":            MsgNameRequired,
	"email.email":         MsgInvalidEmail,
	"phone.min":           MsgPhoneTooShort,
	"confirmPassword.min": MsgConfirmRequired,
})

func (v *Validator) SignIn(form SignInForm) FieldErrors {
	return v.check(form, signInMessages)
}

// SignUp checks password confirmation only once every field is valid on its own.
func (v *Validator) SignUp(form SignUpForm) FieldErrors {
	errs := v.check(form, signUpMessages)
	if len(errs) > 0 {
		return errs
	}

	if err := v.validate.VarWithValue(form.ConfirmPassword, form.Password, "eqfield"); err != nil {
		errs["confirmPassword"] = MsgPasswordsMismatch
	}

	return errs
}

func merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
