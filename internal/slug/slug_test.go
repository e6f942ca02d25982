package slug

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// TestGenerate exercises the slug generator with typical titles, special
// characters, unicode, and edge cases.
func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		// --- Normal titles ---
		{name: "simple two words", input: "Hello World", want: "hello-world"},
		{name: "title with year", input: "Hello World 2026", want: "hello-world-2026"},
		{name: "single word", input: "GoLang", want: "golang"},

		// --- Punctuation becomes a single hyphen ---
		{name: "punctuation marks", input: "Hello, World! How's it going?", want: "hello-world-hows-it-going"},
		{name: "ampersand and at sign", input: "Rock & Roll @ the Arena", want: "rock-roll-the-arena"},
		{name: "parentheses and brackets", input: "Version (2.0) [Beta]", want: "version-2-0-beta"},
		{name: "slashes and pipes", input: "Frontend/Backend | Full Stack", want: "frontend-backend-full-stack"},
		{name: "typographic apostrophe", input: "Don’t Panic", want: "dont-panic"},

		// --- Transliteration ---
		{name: "french accents", input: "Café Résumé Noël", want: "cafe-resume-noel"},
		{name: "german umlauts", input: "Über die Brücke", want: "uber-die-brucke"},
		{name: "sharp s", input: "Straße", want: "strasse"},
		{name: "polish letters", input: "Łódź", want: "lodz"},
		{name: "nordic letters", input: "Smørrebrød Æble", want: "smorrebrod-aeble"},
		{name: "non latin dropped", input: "日本語 Go", want: "go"},

		// --- Whitespace and hyphens ---
		{name: "leading and trailing spaces", input: "  hello world  ", want: "hello-world"},
		{name: "tabs and newlines", input: "hello\tworld\nagain", want: "hello-world-again"},
		{name: "multiple hyphens between words", input: "hello---world", want: "hello-world"},
		{name: "hyphens and spaces mixed", input: "  --hello -- world--  ", want: "hello-world"},
		{name: "date-like string", input: "2026-02-25", want: "2026-02-25"},

		// --- Edge cases ---
		{name: "empty string", input: "", want: ""},
		{name: "only spaces", input: "     ", want: ""},
		{name: "only special characters", input: "!@#$%^&*()", want: ""},
		{name: "single character", input: "A", want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(tt.input, 0)
			if got != tt.want {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestGenerate_Truncate verifies that long slugs are cut at a word boundary
// where feasible.
func TestGenerate_Truncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "fits exactly", input: "alpha beta", maxLen: 10, want: "alpha-beta"},
		{name: "boundary at limit", input: "alpha beta gamma", maxLen: 10, want: "alpha-beta"},
		{name: "cut mid word backs off", input: "alpha beta gamma", maxLen: 12, want: "alpha-beta"},
		{name: "trailing hyphen stripped", input: "alpha beta gamma", maxLen: 11, want: "alpha-beta"},
		{name: "single long word hard cut", input: "supercalifragilistic", maxLen: 5, want: "super"},
		{name: "boundary too early hard cut", input: "a verylongwordhere", maxLen: 10, want: "a-verylong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("Generate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
			if len(got) > tt.maxLen {
				t.Errorf("len = %d exceeds %d", len(got), tt.maxLen)
			}
		})
	}
}

// TestGenerate_AlwaysValid checks that every non-empty result has the
// canonical slug shape.
func TestGenerate_AlwaysValid(t *testing.T) {
	inputs := []string{
		"Technology",
		"Programming & Design",
		"  --Ünïcödé-- ",
		"What is HTMX? A Complete Guide",
		strings.Repeat("word ", 80),
		"Go: The Complete Developer Guide (2026 Edition)",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			got := Generate(input, MaxPostLen)
			if !Valid(got) {
				t.Errorf("Generate(%q) = %q is not a valid slug", input, got)
			}
		})
	}
}

// TestGenerate_Idempotent verifies that generating a slug from an already
// valid slug produces the same result.
func TestGenerate_Idempotent(t *testing.T) {
	for _, s := range []string{"hello-world", "my-blog-post-2026", "a", "123"} {
		t.Run(s, func(t *testing.T) {
			if got := Generate(s, MaxCategoryLen); got != s {
				t.Errorf("Generate(%q) = %q, want idempotent result", s, got)
			}
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hello-world", true},
		{"a1", true},
		{"", false},
		{"-leading", false},
		{"trailing-", false},
		{"double--hyphen", false},
		{"Upper", false},
		{"spa ce", false},
	}
	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// takenSet builds an ExistsFunc backed by a fixed set of slugs.
func takenSet(slugs ...string) ExistsFunc {
	set := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		set[s] = true
	}
	return func(_ context.Context, s string) (bool, error) {
		return set[s], nil
	}
}

func TestEnsureUnique(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		taken  []string
		in     string
		maxLen int
		want   string
	}{
		{name: "free", in: "technology", want: "technology"},
		{name: "first suffix", taken: []string{"technology"}, in: "technology", want: "technology-2"},
		{name: "skips taken suffixes", taken: []string{"go", "go-2", "go-3"}, in: "go", want: "go-4"},
		{name: "shortens base to fit", taken: []string{"abcdefghij"}, in: "abcdefghij", maxLen: 10, want: "abcdefgh-2"},
		{name: "trims hyphen before suffix", taken: []string{"abcdefg-ij"}, in: "abcdefg-ij", maxLen: 10, want: "abcdefg-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EnsureUnique(ctx, tt.in, tt.maxLen, takenSet(tt.taken...))
			if err != nil {
				t.Fatalf("EnsureUnique: %v", err)
			}
			if got != tt.want {
				t.Errorf("EnsureUnique(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !Valid(got) {
				t.Errorf("result %q is not a valid slug", got)
			}
		})
	}
}

func TestEnsureUnique_ExistsError(t *testing.T) {
	boom := errors.New("db down")
	_, err := EnsureUnique(context.Background(), "x", 0, func(context.Context, string) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestEnsureUnique_Exhausted(t *testing.T) {
	_, err := EnsureUnique(context.Background(), "x", 0, func(context.Context, string) (bool, error) {
		return true, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
}

func TestRandom(t *testing.T) {
	a, b := Random("post"), Random("post")
	if a == b {
		t.Error("expected distinct random slugs")
	}
	if !strings.HasPrefix(a, "post-") || !Valid(a) {
		t.Errorf("Random = %q, want valid post-xxxxxxxx", a)
	}
}
