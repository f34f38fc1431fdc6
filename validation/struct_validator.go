package validation

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/skillsenselab/recap/errors"
)

var (
	structValidator *validator.Validate
	structOnce      sync.Once
)

func getValidator() *validator.Validate {
	structOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())

		// Error messages name fields by their json tag.
		structValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return toSnakeCase(fld.Name)
			}
			return name
		})
	})
	return structValidator
}

// Validate runs `validate:"..."` struct tags against s and folds any
// failures into a single INVALID_INPUT error with a per-field breakdown
// in Details.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Invalid("validation failed")
	}

	fieldErrs := make([]FieldError, 0, len(verrs))
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := toSnakeCase(e.Field())
		msg := tagMessage(e)
		fieldErrs = append(fieldErrs, FieldError{Field: field, Message: msg})
		parts = append(parts, field+": "+msg)
	}

	appErr := errors.Invalid(strings.Join(parts, "; "))
	appErr.Details = map[string]any{"fields": fieldErrs}
	return appErr
}

func tagMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
