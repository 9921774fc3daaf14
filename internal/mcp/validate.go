package mcp

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/engramlabs/engram/internal/memory"
)

// validate is the shared validator for tool params. Field names in error
// messages come from the json tag, so callers see the parameter they sent,
// not the Go field.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateParams checks a params struct against its validate tags and
// reports the first failure as a field-level validation error.
func ValidateParams(params any) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &memory.ValidationError{Field: fe.Field(), Message: fieldMessage(fe)}
}

// fieldMessage renders one tag failure as a human message.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("needs at least %s element(s)", fe.Param())
	case "max":
		return fmt.Sprintf("allows at most %s element(s)", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
