package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"weatherapi/internal/types"
)

// ValidationError describes one failed rule on one request field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates hard failures from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether no hard failures were recorded.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Warner is implemented by request types that can flag accepted but
// suspicious input.
type Warner interface {
	ValidationWarnings() []string
}

// Validator wraps go-playground/validator with the service's custom tags.
// Field names in errors use the json tag so they match the request body.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers:
//   - field_name: a usable metric field name (non-empty, no '$' or '.', and
//     not one of the identity or time fields of a reading).
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("field_name", validateFieldName); err != nil {
		logger.Error("failed to register field_name validation", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

func validateFieldName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "" && !strings.ContainsAny(name, "$.") && !types.IsReservedField(name)
}

// ValidateStruct returns nil when s passes every rule, otherwise an AppError
// whose details carry the full list under "validation_errors". The error code
// follows the first failure: missing values map to
// validation_missing_required_field, bad field names to
// validation_invalid_field_name, anything else to validation_invalid_format.
func (v *Validator) ValidateStruct(s any) error {
	return ResultError(ValidationResult{Errors: v.collect(s)})
}

// ResultError converts the hard failures of r into the AppError
// ValidateStruct would return, or nil when r is valid.
func ResultError(r ValidationResult) error {
	errs := r.Errors
	if len(errs) == 0 {
		return nil
	}

	return types.NewAppErrorWithDetails(
		codeFor(errs[0].Code),
		fmt.Sprintf("request validation failed: %s", errs[0].Message),
		nil,
		map[string]any{"validation_errors": errs},
	)
}

// ValidateStructWithWarnings runs the same rules as ValidateStruct and also
// gathers warnings from s when it implements Warner.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	result := ValidationResult{Errors: v.collect(s)}
	if w, ok := s.(Warner); ok {
		result.Warnings = w.ValidationWarnings()
	}
	return result
}

func (v *Validator) collect(s any) []ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: programmer error (nil or non-struct).
		v.logger.Error("struct validation misuse", "error", err)
		return []ValidationError{{Field: "", Code: "invalid", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Code:    fe.Tag(),
			Message: messageFor(fe),
		})
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace, so
// "QueryRequest.metrics[1]" becomes "metrics[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func messageFor(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must contain at most %s item(s)", field, fe.Param())
	case "field_name":
		return field + " must be a plain reading field name without '$' or '.'"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
	}
}

func codeFor(tag string) types.ErrorCode {
	switch tag {
	case "required", "min":
		return types.ErrCodeValidationMissingField
	case "field_name":
		return types.ErrCodeValidationInvalidField
	default:
		return types.ErrCodeValidationInvalidFormat
	}
}
