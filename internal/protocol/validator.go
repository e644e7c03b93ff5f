package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks decoded payloads against their struct tags.
type Validator struct {
	cli *validator.Validate
}

// ValidationError represents an error encountered during validation of a struct field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidator initializes and returns a new instance of the Validator.
func NewValidator() *Validator {
	return &Validator{
		cli: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct validates the provided payload and returns the failing fields.
func (v *Validator) ValidateStruct(s any) []ValidationError {
	err := v.cli.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.StructField(),
			Message: fe.Error(),
		})
	}
	return out
}

// Check is ValidateStruct folded into a single error, nil when valid.
func (v *Validator) Check(s any) error {
	errs := v.ValidateStruct(s)
	if len(errs) == 0 {
		return nil
	}
	fieldNames := make([]string, 0, len(errs))
	for _, e := range errs {
		fieldNames = append(fieldNames, e.Field)
	}
	return fmt.Errorf("invalid payload fields: %s", strings.Join(fieldNames, ", "))
}
