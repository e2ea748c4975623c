package query

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/duynguyendang/outgassing/pkg/common/errors"
	"github.com/duynguyendang/outgassing/pkg/fuzzy"
)

// newValidator builds a validator that reports fields by their json names
// and knows the engine's custom rules.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register validation tag %q: %v", tag, err))
		}
	}
	mustRegister("finite", validateFinite)
	mustRegister("nonblank", validateNonBlank)
	mustRegister("searchable", validateSearchable)
	return v
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateSearchable requires at least one letter or digit, since the
// matcher strips everything else.
func validateSearchable(fl validator.FieldLevel) bool {
	return fuzzy.Process(fl.Field().String()) != ""
}

// validateStruct runs v over s and folds any failures into one
// ErrInvalidInput with a readable message.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "nonblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "searchable":
		return fmt.Sprintf("%s must contain at least one letter or digit", fe.Field())
	case "finite":
		return fmt.Sprintf("%s must be a finite number", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (failed on '%s')", fe.Field(), fe.Tag())
	}
}
