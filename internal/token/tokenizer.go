// Package token provides the CJK-aware tokenizer shared by ingestion
// and query-time lexical matching.
package token

import (
	"strings"
	"unicode"
)

// Tokenize lowercases the input and splits it into tokens: runs of
// letters/digits for alphabetic scripts, one token per CJK rune.
// Duplicates are removed preserving first-seen order.
func Tokenize(s string) []string {
	var tokens []string
	seen := make(map[string]struct{})
	var cur strings.Builder

	emit := func(tok string) {
		if tok == "" {
			return
		}
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	flush := func() {
		emit(cur.String())
		cur.Reset()
	}

	for _, r := range strings.ToLower(s) {
		switch {
		case isCJK(r):
			flush()
			emit(string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
