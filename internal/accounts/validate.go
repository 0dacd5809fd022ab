package accounts

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

// FieldErrors maps a request field to its validation message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for k, v := range fe {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var namePattern = regexp.MustCompile(`^[A-Za-z ]{1,50}$`)

func validateName(fe FieldErrors, field, v string) {
	switch {
	case strings.TrimSpace(v) == "":
		fe[field] = "is required"
	case !namePattern.MatchString(v):
		fe[field] = "must be 1-50 letters or spaces"
	}
}

func validateEmail(fe FieldErrors, v string) {
	if v == "" {
		fe["email"] = "is required"
		return
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || !strings.Contains(v[strings.LastIndex(v, "@"):], ".") {
		fe["email"] = "must be a valid email address"
	}
}

func validatePassword(fe FieldErrors, field, v string) {
	if len(v) < 6 || len(v) > 100 {
		fe[field] = "must be 6-100 characters"
		return
	}
	var upper, lower, digit, special bool
	for _, r := range v {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		fe[field] = "must contain an uppercase letter, a lowercase letter, a number and a special character"
	}
}
