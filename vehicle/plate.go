// Package vehicle talks to the vehicle-info API and renders its payload.
package vehicle

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidPlate = errors.New("invalid vehicle number")

// Two letters, two digits, one or two letters, four digits.
var plateRe = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z]{1,2}\d{4}$`)

// NormalizePlate upper-cases and validates a registration number.
func NormalizePlate(s string) (string, error) {
	plate := strings.ToUpper(strings.TrimSpace(s))
	if !plateRe.MatchString(plate) {
		return "", ErrInvalidPlate
	}
	return plate, nil
}

// ValidPlate reports whether s is a registration number, ignoring case.
func ValidPlate(s string) bool {
	_, err := NormalizePlate(s)
	return err == nil
}
