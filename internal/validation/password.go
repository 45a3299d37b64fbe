package validation

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

// New returns a validator with the application's custom rules registered.
func New() *validator.Validate {
	v := validator.New()
	// Registration only fails for a blank tag.
	_ = v.RegisterValidation("password", passwordStrength)
	return v
}

// passwordStrength requires at least one uppercase letter, one lowercase
// letter, one digit and one symbol. Length is enforced separately by the
// min/max tags.
func passwordStrength(fl validator.FieldLevel) bool {
	var upper, lower, digit, symbol bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsSpace(r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
