package validation

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator provides validation utilities
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) {
	if len(value) > max {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// PositiveInt validates that an integer is positive
func (v *Validator) PositiveInt(field string, value int) {
	if value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// MinCount validates a minimum collection size
func (v *Validator) MinCount(field string, count, min int) {
	if count < min {
		v.AddError(field, fmt.Sprintf("must contain at least %d entries", min))
	}
}

// IntRange validates that an integer falls within [min, max]
func (v *Validator) IntRange(field string, value, min, max int) {
	if value < min || value > max {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// StartRequestValidator validates negotiation start requests
type StartRequestValidator struct {
	*Validator
}

// NewStartRequestValidator creates a validator for negotiation start requests
func NewStartRequestValidator() *StartRequestValidator {
	return &StartRequestValidator{
		Validator: NewValidator(),
	}
}

// ValidateQuantities validates the requested product quantities.
// knownCodes holds the catalog product codes the request may reference.
func (v *StartRequestValidator) ValidateQuantities(quantities map[string]int, knownCodes map[string]bool) {
	if len(quantities) == 0 {
		v.AddError("quantities", "at least one product quantity is required")
		return
	}
	for code, qty := range quantities {
		if !knownCodes[code] {
			v.AddError("quantities", fmt.Sprintf("unknown product code %q", code))
		}
		if qty <= 0 {
			v.AddError("quantities", fmt.Sprintf("invalid quantity for product %q: must be positive", code))
		}
	}
}

// ValidateNote validates the optional steering note
func (v *StartRequestValidator) ValidateNote(note string) {
	v.MaxLength("note", note, 2000)
}

// ValidateRounds validates the requested round count
func (v *StartRequestValidator) ValidateRounds(rounds int) {
	if rounds < 1 || rounds > 10 {
		v.AddError("rounds", fmt.Sprintf("invalid round count %d: must be between 1 and 10", rounds))
	}
}

// ValidateCounterparties validates the counterparty selection
func (v *StartRequestValidator) ValidateCounterparties(count int) {
	if count < 2 {
		v.AddError("counterparties", "at least two counterparties are required")
	}
}

// SanitizeInput sanitizes user input before it reaches prompt construction
func SanitizeInput(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	// Limit length to prevent DoS
	if len(input) > 10000 {
		input = input[:10000]
	}

	return input
}
