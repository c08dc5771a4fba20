package cartflow

import (
	"net/mail"
	"strings"
	"unicode"
)

// Fields holds checkout form values keyed by dotted field path, e.g.
// "email", "shipping_address.line1".
type Fields map[string]string

// Clone returns a copy of the fields map.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// addressParts are the sub-fields a required address must carry.
var addressParts = []string{"line1", "city", "postal_code", "country"}

// Validate checks the form values against the effective requirements and
// returns a field-path-keyed message map. An empty map means the values
// passed.
func Validate(fields Fields, req Requirements) map[string]string {
	errs := make(map[string]string)

	email := strings.TrimSpace(fields["email"])
	switch {
	case email == "" && req.Email == LevelRequired:
		errs["email"] = "Email is required"
	case email != "":
		if _, err := mail.ParseAddress(email); err != nil {
			errs["email"] = "Enter a valid email address"
		}
	}

	if strings.TrimSpace(fields["name"]) == "" && req.Name == LevelRequired {
		errs["name"] = "Name is required"
	}

	phone := strings.TrimSpace(fields["phone"])
	switch {
	case phone == "" && req.Phone == LevelRequired:
		errs["phone"] = "Phone number is required"
	case phone != "" && digitCount(phone) < 7:
		errs["phone"] = "Enter a valid phone number"
	}

	validateAddress(fields, "shipping_address", req.ShippingAddress, errs)
	validateAddress(fields, "billing_address", req.BillingAddress, errs)

	return errs
}

func validateAddress(fields Fields, prefix string, level Level, errs map[string]string) {
	if level != LevelRequired {
		return
	}
	for _, part := range addressParts {
		path := prefix + "." + part
		if strings.TrimSpace(fields[path]) == "" {
			errs[path] = "This field is required"
		}
	}
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
