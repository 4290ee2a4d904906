package address

import (
	"errors"
	"regexp"
	"strings"

	"goflare.io/creamery/models"
)

var (
	ErrMissingFields   = errors.New("please fill all required fields")
	ErrInvalidPhone    = errors.New("please enter a valid 10-digit phone number")
	ErrInvalidPin      = errors.New("please enter a valid 6-digit PIN code")
	ErrAddressNotFound = errors.New("address not found")
)

var (
	phonePattern = regexp.MustCompile(`^\d{10}$`)
	pinPattern   = regexp.MustCompile(`^\d{6}$`)
)

// Validate checks an address before it is written.
func Validate(a models.Address) error {
	for _, field := range []string{a.Name, a.Phone, a.Street, a.City, a.State, a.Pin} {
		if strings.TrimSpace(field) == "" {
			return ErrMissingFields
		}
	}
	if !phonePattern.MatchString(a.Phone) {
		return ErrInvalidPhone
	}
	if !pinPattern.MatchString(a.Pin) {
		return ErrInvalidPin
	}
	return nil
}
