package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envString returns the value of key, or defaultValue when unset.
func envString(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

// envInt returns the integer value of key, or defaultValue when unset.
// A value that does not parse is a fatal configuration error: running
// with a window or commit count the operator never asked for is worse
// than refusing to start.
func envInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadInteger, key, value)
	}
	return n, nil
}

// envBool returns the boolean value of key, or defaultValue when unset.
// Truthy spellings are 1, true, yes and on in any case; every other
// value is false.
func envBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
