package util

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// SliceToMap turns ["k=v", ...] into a map. Values may contain '='; a later
// duplicate key wins.
func SliceToMap(slice []string) (map[string]string, error) {
	if bad, found := lo.Find(slice, func(s string) bool {
		k, _, ok := strings.Cut(s, "=")
		return !ok || strings.TrimSpace(k) == ""
	}); found {
		return nil, errors.Errorf("expected key=value, got %q", bad)
	}
	return lo.SliceToMap(slice, func(s string) (string, string) {
		k, v, _ := strings.Cut(s, "=")
		return strings.TrimSpace(k), v
	}), nil
}

// SplitHeader parses a "Name: value" or "Name=value" header flag.
func SplitHeader(s string) (string, string, error) {
	sep := strings.IndexAny(s, ":=")
	if sep <= 0 {
		return "", "", errors.Errorf("expected name: value, got %q", s)
	}
	return strings.TrimSpace(s[:sep]), strings.TrimSpace(s[sep+1:]), nil
}
