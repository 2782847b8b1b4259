package authkit

import (
	"fmt"
	"strings"
)

// destination classification: a destination that parses as a phone
// number routes over SMS, anything with an @ routes over email.

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 {
		return "", fmt.Errorf("%w: malformed email", ErrValidation)
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.ContainsAny(email, " \t\n") {
		return "", fmt.Errorf("%w: malformed email", ErrValidation)
	}
	return email, nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 64 {
		return "", fmt.Errorf("%w: username must be 3-64 characters", ErrValidation)
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return "", fmt.Errorf("%w: username has invalid characters", ErrValidation)
		}
	}
	return username, nil
}

// normalizePhone canonicalizes a phone number to E.164-ish form. A
// leading + keeps the number as dialed; otherwise the configured
// country code is prepended. There is no hardcoded default region.
func normalizePhone(phone, countryCode string) (string, error) {
	var digits strings.Builder
	international := false

	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r == '+' && i == 0:
			international = true
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: malformed phone number", ErrValidation)
		}
	}

	n := digits.String()
	if len(n) < 7 || len(n) > 15 {
		return "", fmt.Errorf("%w: phone number length out of range", ErrValidation)
	}

	if international {
		return "+" + n, nil
	}
	if countryCode == "" {
		return "", fmt.Errorf("%w: national phone number requires a configured country code", ErrValidation)
	}
	return "+" + strings.TrimPrefix(countryCode, "+") + n, nil
}

// resolveDestination normalizes a raw OTP destination and reports which
// channel reaches it.
func resolveDestination(raw, countryCode string) (destination string, channel Channel, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, fmt.Errorf("%w: empty destination", ErrValidation)
	}

	if strings.ContainsRune(raw, '@') {
		email, err := normalizeEmail(raw)
		if err != nil {
			return "", 0, err
		}
		return email, ChannelEmail, nil
	}

	phone, err := normalizePhone(raw, countryCode)
	if err != nil {
		return "", 0, err
	}
	return phone, ChannelSMS, nil
}

func validatePassword(password string, minLength int) error {
	if len(password) < minLength {
		return fmt.Errorf("%w: password must be at least %d bytes", ErrValidation, minLength)
	}
	return nil
}
