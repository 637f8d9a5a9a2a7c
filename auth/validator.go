package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateClaims trims the claims then checks them against their tags.
func ValidateClaims(claims *Claims) error {
	claims.Name = strings.TrimSpace(claims.Name)
	claims.Hobby = strings.TrimSpace(claims.Hobby)
	return validate.Struct(claims)
}
