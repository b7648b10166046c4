package analysis

import (
	"strings"
	"unicode"
)

// stopwords are common English words dropped during keyword extraction.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by", "can",
		"did", "do", "does", "for", "from", "had", "has", "have", "he",
		"her", "him", "his", "i", "if", "in", "is", "it", "its", "just",
		"me", "my", "no", "not", "of", "on", "or", "our", "she", "so",
		"that", "the", "their", "them", "they", "this", "to", "was", "we",
		"were", "what", "when", "who", "will", "with", "you", "your",
	} {
		stopwords[w] = struct{}{}
	}
}

// Keywords extracts the normalized useful-word set from a message body:
// whitespace-split tokens with emoji stripped, trailing punctuation trimmed,
// lowercased, stopwords and empties dropped, de-duplicated in first-seen order.
func Keywords(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, word := range strings.Fields(body) {
		word = stripSymbols(word)
		word = strings.TrimRightFunc(word, unicode.IsPunct)
		word = strings.ToLower(word)
		if word == "" {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}

// stripSymbols removes emoji and other symbol runes from a token.
func stripSymbols(word string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSymbol(r) || unicode.In(r, unicode.Mn, unicode.Me) {
			return -1
		}
		return r
	}, word)
}
