package checkout

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// PayerDetails is the billing and contact record collected before submit.
type PayerDetails struct {
	FullName     string `validate:"required"`
	Email        string `validate:"required,email"`
	Phone        string
	AddressLine1 string `validate:"required"`
	AddressLine2 string
	City         string `validate:"required"`
	State        string
	PostalCode   string `validate:"required"`
	Country      string `validate:"required"`
}

var payerValidate = validator.New()

var payerLabels = map[string]string{
	"FullName":     "Full name",
	"Email":        "Email",
	"AddressLine1": "Address",
	"City":         "City",
	"PostalCode":   "Postal code",
	"Country":      "Country",
}

// Normalized returns a copy with surrounding whitespace removed from every
// field, so blank input counts as missing.
func (p PayerDetails) Normalized() PayerDetails {
	return PayerDetails{
		FullName:     strings.TrimSpace(p.FullName),
		Email:        strings.TrimSpace(p.Email),
		Phone:        strings.TrimSpace(p.Phone),
		AddressLine1: strings.TrimSpace(p.AddressLine1),
		AddressLine2: strings.TrimSpace(p.AddressLine2),
		City:         strings.TrimSpace(p.City),
		State:        strings.TrimSpace(p.State),
		PostalCode:   strings.TrimSpace(p.PostalCode),
		Country:      strings.TrimSpace(p.Country),
	}
}

// Validate returns a *ValidationError listing every missing or malformed
// field, or nil when the record is complete.
func (p PayerDetails) Validate() error {
	err := payerValidate.Struct(p.Normalized())
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validate payer details")
	}

	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.add(fieldKey(fe.Field()), fieldMessage(fe))
	}
	return verr
}

// Complete reports whether Validate would succeed.
func (p PayerDetails) Complete() bool {
	return p.Validate() == nil
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := payerLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	if fe.Tag() == "email" {
		return "Please enter a valid email address"
	}
	return label + " is required"
}

// fieldKey maps struct field names to the lowerCamel keys used on the wire.
func fieldKey(name string) string {
	if name == "" {
		return name
	}
	return "payer." + strings.ToLower(name[:1]) + name[1:]
}
