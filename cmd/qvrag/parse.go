package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"qvrag/internal/domain"
)

// parsePairs turns key=value arguments into a metadata record. Values that
// read as true/false, integers or floats become those types; wrap a value in
// double quotes to keep it a string. Non-finite numbers such as nan stay strings.
func parsePairs(pairs []string) (domain.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(domain.Metadata, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, domain.Errorf(domain.ErrInvalidConfiguration, "parse metadata", "", "expected key=value, got %q", p)
		}
		out[k] = parseValue(v)
	}
	return out, nil
}

func parseValue(v string) any {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	// NaN and Inf stay strings: they cannot be stored as JSON or matched by equality
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return v
}

func parseFormat(tag string) (domain.Format, error) {
	if tag == "" {
		return "", nil
	}
	f, err := domain.ParseFormat(tag)
	if err != nil {
		return "", fmt.Errorf("--format: %w", err)
	}
	return f, nil
}
