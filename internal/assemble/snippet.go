package assemble

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultSnippetLength is the minimum length of a snippet in characters.
const DefaultSnippetLength = 200

var sentenceBreak = regexp.MustCompile(`[.!?\n]+`)

// Terms splits a query string into snippet terms on single spaces.
func Terms(q string) []string {
	var terms []string
	for _, t := range strings.Split(q, " ") {
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// bestSentence returns the trimmed sentence of text that contains the most
// query terms. A sentence scores one point per term it contains, matched
// case-insensitively as a substring. Ties go to the sentence that comes first
// in the text. It reports false when no sentence contains any term.
func bestSentence(text string, terms []string) (string, bool) {
	best, bestScore := "", 0
	for _, raw := range sentenceBreak.Split(text, -1) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		score := 0
		for _, t := range terms {
			if strings.Contains(lower, strings.ToLower(t)) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = sentence, score
		}
	}
	return best, bestScore > 0
}

// Snippet picks the best sentence of text for terms and extends it forward
// through the text until it is at least length characters long. It reports
// false, and returns nothing, when no sentence matches.
func Snippet(text string, terms []string, length int) (string, bool) {
	sentence, ok := bestSentence(text, terms)
	if !ok {
		return "", false
	}

	start := utf8.RuneCountInString(text[:strings.Index(text, sentence)])
	size := max(length, utf8.RuneCountInString(sentence))

	runes := []rune(text)
	end := min(start+size, len(runes))
	return strings.TrimSpace(string(runes[start:end])), true
}

// Head returns the first length characters of text.
func Head(text string, length int) string {
	runes := []rune(text)
	if len(runes) <= length {
		return text
	}
	return string(runes[:length])
}
