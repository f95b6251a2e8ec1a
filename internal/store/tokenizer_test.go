package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_DropsStopWordsAndPunctuation(t *testing.T) {
	terms := Tokenize("What are your business hours?")
	assert.Equal(t, []string{"business", "hour"}, terms)
}

func TestTokenize_SplitsOnNonAlphanumerics(t *testing.T) {
	terms := Tokenize("9am–5pm, Monday/Friday; e-mail")
	assert.Equal(t, []string{"9am", "5pm", "monday", "friday", "mail"}, terms)
}

func TestTokenize_EmptyAndStopWordOnly(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("what is the"))
	assert.Empty(t, Tokenize("a b c ! ?"))
}

func TestTokens_OffsetsPointIntoSource(t *testing.T) {
	text := "ÉCOLE Hours"
	toks := Tokens(text)
	if assert.Len(t, toks, 2) {
		assert.Equal(t, "école", toks[0].Term)
		assert.Equal(t, "ÉCOLE", text[toks[0].Start:toks[0].End])
		assert.Equal(t, "hour", toks[1].Term)
		assert.Equal(t, "Hours", text[toks[1].Start:toks[1].End])
	}
}

func TestFoldTerm(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hours", "hour"},
		{"documents", "document"},
		{"policies", "policy"},
		{"business", "business"},
		{"status", "status"},
		{"analysis", "analysis"},
		{"gas", "gas"},
		{"hour", "hour"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldTerm(tt.in))
		})
	}
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.True(t, IsStopWord("your"))
	assert.False(t, IsStopWord("support"))
}
