package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyArgument = errors.New("empty argument")
	ErrInvalidDays   = errors.New("invalid days")
	ErrTooManyDays   = errors.New("too many days")
	ErrInvalidUserID = errors.New("invalid user id")
)

// MaxGrantDays caps a single key at roughly ten years.
const MaxGrantDays = 3650

// ParseDays parses a positive number of grant days, e.g. "30".
// Signs and non-digit characters are rejected.
func ParseDays(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyArgument
	}
	if !isAllDigits(s) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDays, s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDays, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidDays)
	}
	if n > MaxGrantDays {
		return 0, fmt.Errorf("%w: max %d", ErrTooManyDays, MaxGrantDays)
	}
	return n, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ParseUserID parses a chat user identifier. Negative ids belong to groups and are rejected.
func ParseUserID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyArgument
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidUserID, s)
	}
	return id, nil
}

// NormalizeToken trims surrounding whitespace and upper-cases a user-entered key.
// Inline code markers are stripped since admins often paste the key as `KEY`.
func NormalizeToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	return strings.ToUpper(strings.TrimSpace(s))
}
