package analyzer

import "strings"

// stopwords excludes common filler words from switch detection even when
// they clear the length bar.
var stopwords = map[string]bool{
	"about": true,
	"after": true,
	"again": false, // "again" carries topic continuity, keep it meaningful
	"also":  true,
	"back":  true,
	"been":  true,
	"does":  true,
	"from":  true,
	"have":  true,
	"into":  true,
	"just":  true,
	"more":  true,
	"need":  true,
	"some":  true,
	"that":  true,
	"them":  true,
	"then":  true,
	"they":  true,
	"this":  true,
	"want":  true,
	"what":  true,
	"when":  true,
	"will":  true,
	"with":  true,
	"your":  true,
}

const minMeaningfulLen = 4

// meaningfulTokens normalizes text into the set of meaningful words:
// lowercased, punctuation stripped, length >= 4, stopwords removed.
func meaningfulTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !isWordRune(r)
		})
		if len(word) < minMeaningfulLen {
			continue
		}
		if stopwords[word] {
			continue
		}
		tokens[word] = true
	}
	return tokens
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// shareToken reports whether two token sets intersect.
func shareToken(a, b map[string]bool) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for tok := range a {
		if b[tok] {
			return true
		}
	}
	return false
}
