package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	// Custom validator instance
	validate = validator.New()

	// Regex patterns for validation
	namespacePattern = regexp.MustCompile(`^urn:[A-Za-z0-9.\-]+$`)
	prefixPattern    = regexp.MustCompile(`^[A-Za-z0-9]{1,32}$`)
)

// MaxTickerLength is the widest ticker the store accepts.
const MaxTickerLength = 10

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Register custom validators
func init() {
	validate.RegisterValidation("ticker", validateTicker)
	validate.RegisterValidation("policy", validatePolicy)
	validate.RegisterValidation("namespace", validateNamespace)
	validate.RegisterValidation("yymmdd", validateYYMMDD)
	validate.RegisterValidation("prefix", validatePrefix)
}

// validateTicker checks the ticker is non-blank and fits the column
func validateTicker(fl validator.FieldLevel) bool {
	ticker, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(ticker) != "" && utf8.RuneCountInString(ticker) <= MaxTickerLength
}

// validatePolicy accepts the merge policy names
func validatePolicy(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "append", "upsert":
		return true
	}
	return false
}

// validateNamespace validates a namespace URI of the urn: form
func validateNamespace(fl validator.FieldLevel) bool {
	return namespacePattern.MatchString(fl.Field().String())
}

// validateYYMMDD validates a session date in YYMMDD form
func validateYYMMDD(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 6 {
		return false
	}
	_, err := time.Parse("060102", s)
	return err == nil
}

// validatePrefix validates a document name prefix
func validatePrefix(fl validator.FieldLevel) bool {
	return prefixPattern.MatchString(fl.Field().String())
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrors{{Field: "struct", Message: err.Error()}}
	}

	var out ValidationErrors
	for _, err := range verrs {
		field := err.Field()
		tag := err.Tag()
		value := err.Value()

		out = append(out, ValidationError{
			Field:   field,
			Message: getErrorMessage(field, tag, err.Param()),
			Value:   value,
		})
	}

	return out
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "ticker":
		return fmt.Sprintf("%s must be a non-blank ticker of at most %d characters", field, MaxTickerLength)
	case "policy":
		return fmt.Sprintf("%s must be one of append, upsert", field)
	case "namespace":
		return fmt.Sprintf("%s must be a urn: namespace URI", field)
	case "yymmdd":
		return fmt.Sprintf("%s must be a date in YYMMDD form", field)
	case "prefix":
		return fmt.Sprintf("%s must be 1-32 alphanumeric characters", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
