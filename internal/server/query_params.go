package server

import (
	"strconv"
	"strings"
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parsePositiveInt returns def for an empty value and an error for anything not > 0.
func parsePositiveInt(value string, def int) (int, bool) {
	parsed, err := parseOptionalInt(value)
	if err != nil {
		return 0, false
	}
	if parsed == nil {
		return def, true
	}
	if *parsed <= 0 {
		return 0, false
	}
	return *parsed, true
}
