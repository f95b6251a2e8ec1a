package store

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a normalized term with its byte span in the source text.
type Token struct {
	Term  string
	Start int
	End   int
}

// englishStopWords are dropped from both indexed text and queries.
var englishStopWords = BuildStopWordMap([]string{
	"a", "about", "above", "after", "again", "all", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "below", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during", "each", "few", "for", "from", "further",
	"had", "has", "have", "having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more", "most", "my", "myself",
	"no", "nor", "not", "now", "of", "off", "on", "once", "only", "or", "other", "our", "ours", "ourselves",
	"out", "over", "own", "same", "she", "should", "so", "some", "such",
	"than", "that", "the", "their", "theirs", "them", "themselves", "then", "there", "these", "they",
	"this", "those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your", "yours", "yourself", "yourselves",
	"please", "tell", "want", "know", "need", "get",
})

// BuildStopWordMap builds a lookup set from words.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// IsStopWord reports whether the lowercase term is an English stop word.
func IsStopWord(term string) bool {
	_, ok := englishStopWords[term]
	return ok
}

// Tokens splits text on anything that is not a letter or digit, lowercases,
// drops stop words and single characters, and folds simple plurals.
func Tokens(text string) []Token {
	var out []Token
	start := -1
	emit := func(end int) {
		s := start
		start = -1
		term := strings.ToLower(text[s:end])
		if utf8.RuneCountInString(term) < 2 || IsStopWord(term) {
			return
		}
		out = append(out, Token{Term: FoldTerm(term), Start: s, End: end})
	}

	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			emit(i)
		}
	}
	if start >= 0 {
		emit(len(text))
	}
	return out
}

// Tokenize returns the terms of Tokens.
func Tokenize(text string) []string {
	toks := Tokens(text)
	terms := make([]string, len(toks))
	for i, t := range toks {
		terms[i] = t.Term
	}
	return terms
}

// FoldTerm strips a plural "s" so "hours" and "hour" share a term.
// Words ending in ss, us or is are left alone.
func FoldTerm(term string) string {
	n := len(term)
	if n <= 3 || term[n-1] != 's' {
		return term
	}
	switch term[n-2] {
	case 's', 'u', 'i':
		return term
	}
	if strings.HasSuffix(term, "ies") && n > 4 {
		return term[:n-3] + "y"
	}
	return term[:n-1]
}
