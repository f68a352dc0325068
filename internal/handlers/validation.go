package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgauth "github.com/BradenHooton/prok/pkg/auth"
)

// RequestError is a rejected request body. Reason is the client-facing code.
type RequestError struct {
	Reason  string
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateRequest validates a request struct and returns a *RequestError.
// A missing required field maps to missing_fields; anything else to bad_request.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &RequestError{Reason: "bad_request", Message: err.Error()}
	}

	fe := ve[0]
	reason := "bad_request"
	if fe.Tag() == "required" {
		reason = string(pkgauth.ReasonMissingFields)
	}
	return &RequestError{
		Reason:  reason,
		Field:   fe.Field(),
		Message: formatValidationError(fe),
	}
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// reasonMessage is the human text for a validation reason code
func reasonMessage(reason string) string {
	switch pkgauth.Reason(reason) {
	case pkgauth.ReasonMissingFields:
		return "Required fields are missing"
	case pkgauth.ReasonInvalidEmail:
		return "Email address is not valid"
	case pkgauth.ReasonInvalidUsername:
		return "Username must not contain '@'"
	case pkgauth.ReasonWeakPassword:
		return fmt.Sprintf("Password must be %d to %d characters and contain at least one letter and one digit",
			pkgauth.MinPasswordLen, pkgauth.MaxPasswordLen)
	default:
		return "Invalid request"
	}
}
