// Package validation checks decoded request bodies and reports the first
// failing field as a domain validation error.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	id "transplant/pkg/domain"
	dErrors "transplant/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
		_, err := id.ParseBloodType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("organ", func(fl validator.FieldLevel) bool {
		_, err := id.ParseOrganType(fl.Field().String())
		return err == nil
	})
	return v
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return dErrors.New(dErrors.CodeValidation, describe(fieldErrs[0]))
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "bloodtype":
		return field + " must be a valid blood type"
	case "organ":
		return field + " must be a valid organ type"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "uuid":
		return field + " must be a uuid"
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
