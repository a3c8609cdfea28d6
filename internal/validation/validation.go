// Package validation checks credentials and record input.
package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pandeptwidyaop/trp-api/internal/models"
)

var (
	// ErrPasswordMissing indicates the basic-auth password is not configured.
	ErrPasswordMissing = errors.New("API_BASIC_PASS is not set")
	// ErrPasswordTooShort indicates password is less than minimum length.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrPasswordTooSimple indicates password mixes too few character classes.
	ErrPasswordTooSimple = errors.New("password must mix at least three of: upper case, lower case, digits, symbols")
	// ErrPasswordCommon indicates password is too common.
	ErrPasswordCommon = errors.New("password is too common, please choose a stronger password")
	// ErrUsernameInvalid indicates the basic-auth username cannot be used.
	ErrUsernameInvalid = errors.New("username must be non-empty and must not contain ':'")
	// ErrInputTooLong indicates input exceeds maximum length.
	ErrInputTooLong = errors.New("input exceeds maximum length")
	// ErrInputInvalid indicates input contains invalid characters.
	ErrInputInvalid = errors.New("input contains invalid characters")
)

// MaxTextLength bounds the free-text record columns.
const MaxTextLength = 255

// PasswordPolicy defines password requirements.
type PasswordPolicy struct {
	MinLength   int
	MinClasses  int
	CheckCommon bool
}

// DefaultPasswordPolicy returns the policy applied to API_BASIC_PASS.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:   8,
		MinClasses:  3,
		CheckCommon: true,
	}
}

// Placeholders shipped in templates and other well-known passwords.
var commonPasswords = map[string]bool{
	"password":    true,
	"changeme":    true,
	"change-me":   true,
	"123456":      true,
	"12345678":    true,
	"qwerty":      true,
	"abc123":      true,
	"password1":   true,
	"password123": true,
	"admin":       true,
	"admin123":    true,
	"letmein":     true,
	"welcome":     true,
	"passw0rd":    true,
	"p@ssw0rd":    true,
	"iloveyou":    true,
}

// IsBcryptHash reports whether s looks like a bcrypt hash.
func IsBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// ValidatePassword validates a password against the policy.
func ValidatePassword(password string, policy PasswordPolicy) error {
	if password == "" {
		return ErrPasswordMissing
	}
	if policy.CheckCommon && commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	if len(password) < policy.MinLength {
		return ErrPasswordTooShort
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	classes := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if ok {
			classes++
		}
	}
	if classes < policy.MinClasses {
		return ErrPasswordTooSimple
	}

	return nil
}

// ValidateCredentials checks the configured basic-auth pair. A bcrypt hash
// is accepted as the password without further checks.
func ValidateCredentials(username, password string) error {
	if username == "" || strings.Contains(username, ":") {
		return ErrUsernameInvalid
	}
	if IsBcryptHash(password) {
		return nil
	}
	return ValidatePassword(password, DefaultPasswordPolicy())
}

// ValidateText validates a free-text column value.
func ValidateText(s string, maxLength int) error {
	if utf8.RuneCountInString(s) > maxLength {
		return ErrInputTooLong
	}
	if !utf8.ValidString(s) || strings.ContainsAny(s, "\x00") {
		return ErrInputInvalid
	}
	return nil
}

// ValidateRecordFields applies ValidateText to every text column that is set.
func ValidateRecordFields(f *models.RecordFields) error {
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"outlet", f.Outlet},
		{"day", f.Day},
		{"category", f.Category},
	} {
		if field.value == nil {
			continue
		}
		if err := ValidateText(*field.value, MaxTextLength); err != nil {
			return errors.New(field.name + ": " + err.Error())
		}
	}
	return nil
}
