package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Basic(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Morning News", "morning news"},
		{"diacritics stripped", "Café Société", "cafe societe"},
		{"punctuation to space", "budget: the (real) story!", "budget the real story"},
		{"whitespace collapsed", "  a \t b\n\nc ", "a b c"},
		{"digits kept", "Episode 42", "episode 42"},
		{"empty", "", ""},
		{"only punctuation", "?!...---", ""},
		{"unicode letters kept", "München Größe", "munchen große"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Morning News",
		"Café Société!",
		"  spaced   out  ",
		"ep_42-final",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"budget", "announce"}, Tokens("Budget Announce!"))
	assert.Nil(t, Tokens("   "))
	assert.Nil(t, Tokens(""))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "A deep dive", StripHTML("<p>A <b>deep</b> dive</p>"))
	assert.Equal(t, "Tom & Jerry", StripHTML("Tom &amp; Jerry"))
	assert.Equal(t, "", StripHTML(""))
	// Script bodies are dropped entirely, not just untagged.
	assert.Equal(t, "safe", StripHTML(`<script>alert(1)</script>safe`))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 10))
	assert.Equal(t, "", Truncate("abcdef", 0))
	// Rune-safe: never splits a multi-byte character.
	assert.Equal(t, "añ", Truncate("añejo", 2))
}

func TestFileNameToken(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://cdn.example.com/shows/ep_42-final.mp3?token=abc", "ep 42 final"},
		{"https://cdn.example.com/audio.mp3", "audio"},
		{"plainfile.ogg", "plainfile"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileNameToken(tt.input), "input %q", tt.input)
	}
}
