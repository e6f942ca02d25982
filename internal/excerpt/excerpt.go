// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package excerpt derives plain-text post summaries from Markdown content.
// The content is rendered to HTML with goldmark and every tag is stripped
// with bluemonday's strict policy, so raw HTML in the source never leaks
// into an excerpt.
package excerpt

import (
	"bytes"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MaxLen is the longest excerpt a post may carry, in characters.
const MaxLen = 500

const ellipsis = "..."

// md is the configured goldmark instance, reused across calls.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM, // GitHub-Flavored Markdown: tables, strikethrough, autolinks, task lists
	),
)

// strict removes all markup. bluemonday policies are safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// PlainText renders Markdown and returns its visible text with whitespace
// collapsed to single spaces.
func PlainText(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	text := html.UnescapeString(strict.Sanitize(buf.String()))
	return strings.Join(strings.Fields(text), " "), nil
}

// Derive returns a plain-text excerpt of at most maxLen characters. Longer
// text is cut at the last word boundary that fits and gets an ellipsis.
// maxLen <= 0 means MaxLen.
func Derive(source string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxLen
	}
	text, err := PlainText(source)
	if err != nil {
		return "", err
	}
	return Truncate(text, maxLen), nil
}

// Truncate shortens text to at most maxLen characters.
func Truncate(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= len(ellipsis) {
		return string([]rune(text)[:maxLen])
	}

	cut := string([]rune(text)[:maxLen-len(ellipsis)])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + ellipsis
}
