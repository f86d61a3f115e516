package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "sellerlicense/internal/errors"
)

// DefaultMaxBodySize bounds decoded request bodies. Import payloads can
// carry a whole catalog, so this is generous.
const DefaultMaxBodySize = 10 * 1024 * 1024

// Validator decodes JSON request bodies and validates them using struct tags.
type Validator struct {
	validate    *validator.Validate
	maxBodySize int64
}

// NewValidator creates a validator that reports JSON field names.
func NewValidator() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v, maxBodySize: DefaultMaxBodySize}
}

// DecodeJSON reads r's body into dst and validates it. Failures are
// returned as validation AppErrors.
func (v *Validator) DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apierrors.NewValidationError("request body is required")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, v.maxBodySize))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.NewValidationError("request body is required")
		}
		return apierrors.NewAppError(apierrors.ErrTypeValidation, "request body contains invalid JSON", err)
	}

	return v.Struct(dst)
}

// Struct validates s, joining every field failure into one message.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.NewAppError(apierrors.ErrTypeValidation, "invalid request", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, formatValidationError(fe))
		fields = append(fields, fe.Field())
	}
	return apierrors.NewValidationError(strings.Join(messages, "; ")).
		WithContext("fields", fields)
}

// formatValidationError formats validation error messages
func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
