// Package env reads process environment overrides that live outside the
// DINEBOT-prefixed config block, such as the platform-injected PORT and the
// log format switch.
package env

import "os"

// Get returns the variable's value, or fallback when it is unset or empty.
// Empty counts as unset so a blank override cannot erase a default.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
