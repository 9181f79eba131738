// Package config provides environment helpers for depthview commands.
// Every variable is read as DEPTHVIEW_<NAME>.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix is prepended to every variable name.
const Prefix = "DEPTHVIEW_"

// Lookup returns the value of DEPTHVIEW_<name> and whether it is set and non-empty.
func Lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(Prefix + strings.ToUpper(name))
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// String returns DEPTHVIEW_<name> or def.
func String(name, def string) string {
	if v, ok := Lookup(name); ok {
		return v
	}
	return def
}

// Bool returns DEPTHVIEW_<name> parsed as a bool, or def when unset or invalid.
func Bool(name string, def bool) bool {
	if v, ok := Lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns DEPTHVIEW_<name> parsed as an int, or def.
func Int(name string, def int) int {
	if v, ok := Lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns DEPTHVIEW_<name> parsed as a float64, or def.
func Float(name string, def float64) float64 {
	if v, ok := Lookup(name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Duration returns DEPTHVIEW_<name> parsed with time.ParseDuration, or def.
func Duration(name string, def time.Duration) time.Duration {
	if v, ok := Lookup(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
