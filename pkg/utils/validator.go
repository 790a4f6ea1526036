package utils

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var Validate = newValidator()

var snakeIdentifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("snake_ident", func(fl validator.FieldLevel) bool {
		return snakeIdentifier.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct runs the `validate` tags of s.
func ValidateStruct(s interface{}) error {
	return Validate.Struct(s)
}
