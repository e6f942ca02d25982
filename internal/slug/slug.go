// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug provides URL-friendly slug generation from arbitrary strings
// and collision resolution against an injected existence check.
package slug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Maximum slug lengths per entity, matching the column sizes.
const (
	MaxCategoryLen = 100
	MaxPostLen     = 200
)

// maxAttempts bounds the numeric suffix search in EnsureUnique.
const maxAttempts = 1000

// ErrExhausted is returned when no free suffix was found.
var ErrExhausted = errors.New("slug: no unique candidate found")

var (
	// separators matches every run of characters outside [a-z0-9].
	separators = regexp.MustCompile(`[^a-z0-9]+`)
	// valid is the shape every generated slug satisfies.
	valid = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// letters that have no canonical decomposition into ASCII + combining mark.
var replacer = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "ae", "ø", "o", "Ø", "o",
	"đ", "d", "Đ", "d", "ł", "l", "Ł", "l", "ı", "i",
	"œ", "oe", "Œ", "oe", "þ", "th", "Þ", "th",
	"'", "", "’", "",
)

// Generate creates a URL-friendly slug from the given string, truncated to
// maxLen bytes (maxLen <= 0 means unlimited).
// Example: "Café Crème, 2026!" → "cafe-creme-2026"
func Generate(s string, maxLen int) string {
	result := replacer.Replace(strings.TrimSpace(s))
	result = transliterate(result)
	result = strings.ToLower(result)
	result = separators.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	return truncate(result, maxLen)
}

// transliterate strips combining marks after canonical decomposition so
// accented Latin letters fall back to their base letter.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// truncate cuts s to maxLen, preferring the last word boundary as long as
// it keeps at least half of the budget.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if s[maxLen] == '-' {
		return strings.Trim(s[:maxLen], "-")
	}
	cut := s[:maxLen]
	if i := strings.LastIndexByte(cut, '-'); i >= maxLen/2 {
		cut = cut[:i]
	}
	return strings.Trim(cut, "-")
}

// Valid reports whether s is a well-formed slug.
func Valid(s string) bool {
	return valid.MatchString(s)
}

// Random returns a short random slug, used when the source text has no
// usable characters at all.
func Random(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ExistsFunc reports whether a slug is already taken. Callers updating an
// entity in place exclude the entity's own identifier inside the closure.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// EnsureUnique returns candidate if it is free, otherwise the first free
// "candidate-N" for N = 2, 3, ... The base is shortened so the suffixed
// slug still fits maxLen.
func EnsureUnique(ctx context.Context, candidate string, maxLen int, exists ExistsFunc) (string, error) {
	for n := 1; n <= maxAttempts; n++ {
		s := withSuffix(candidate, n, maxLen)
		taken, err := exists(ctx, s)
		if err != nil {
			return "", fmt.Errorf("slug exists check: %w", err)
		}
		if !taken {
			return s, nil
		}
	}
	return "", ErrExhausted
}

func withSuffix(base string, n, maxLen int) string {
	if n == 1 {
		return base
	}
	suffix := "-" + strconv.Itoa(n)
	if cut := maxLen - len(suffix); maxLen > 0 && cut > 0 && len(base) > cut {
		base = strings.TrimRight(base[:cut], "-")
	}
	return base + suffix
}
