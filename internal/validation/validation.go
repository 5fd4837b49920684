// Package validation checks queue operation payloads before they are
// persisted. A payload that fails validation would fail identically on
// every replay, so it is rejected at enqueue time instead.
package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/ldttech/poscore/internal/errors"
)

// Validator wraps a configured go-playground validator.
type Validator struct {
	v *validatorv10.Validate
}

// New returns a configured Validator.
func New() *Validator {
	return &Validator{v: validatorv10.New()}
}

// ValidatePayload validates a queue payload variant against its
// struct tags. Returns an AppError with code VALIDATION_ERROR listing
// the offending fields.
func (val *Validator) ValidatePayload(payload interface{}) error {
	err := val.v.Struct(payload)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		return errors.Wrap(errors.ErrValidation, "payload validation failed", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return errors.New(errors.ErrValidation, "invalid payload fields: "+strings.Join(fields, ", "))
}
