package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"parcelquote/internal/auth"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := auth.RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// writeValidationError answers 400 with one detail line per failed field.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, validationMessage(fe))
	}
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {
		Code:    "validation_failed",
		Message: "validation failed",
		Details: details,
	}})
}

func validationMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), rootNamespace(fe))
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "min":
		return field + " must contain at least " + fe.Param() + " item(s)"
	case "oneof":
		return field + " must be one of [" + fe.Param() + "]"
	case "cnphone":
		return field + " must be an 11-digit mainland mobile number"
	default:
		return field + " is invalid"
	}
}

// rootNamespace is the struct-name prefix the validator puts on every
// namespace, e.g. "quoteRequest.".
func rootNamespace(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[:i+1]
	}
	return ""
}
