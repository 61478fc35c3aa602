package chatstats

import (
	"regexp"
	"strings"
	"unicode"
)

// Tokenize lowercases the text, splits on whitespace, strips every
// non-word rune from each piece, and returns the non-empty results.
// Word runes are letters, digits, marks, and underscore.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		cleaned := strings.Map(func(r rune) rune {
			if isWordRune(r) {
				return r
			}
			return -1
		}, f)
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// WordLen reports the word count of a message, using the same
// tokenization as the frequency counters.
func WordLen(text string) int {
	return len(Tokenize(text))
}

// emojiPattern matches common emoji code points: regional indicator pairs
// (flags) first, then the pictographic blocks, then the legacy symbol ranges.
var emojiPattern = regexp.MustCompile(`[\x{1F1E6}-\x{1F1FF}]{2}` +
	`|[\x{1F300}-\x{1F5FF}]` +
	`|[\x{1F600}-\x{1F64F}]` +
	`|[\x{1F680}-\x{1F6FF}]` +
	`|[\x{1F900}-\x{1F9FF}]` +
	`|[\x{1FA70}-\x{1FAFF}]` +
	`|[\x{2600}-\x{26FF}]` +
	`|[\x{2700}-\x{27BF}]` +
	`|[\x{2B00}-\x{2BFF}]` +
	`|[\x{2190}-\x{21FF}]` +
	`|[\x{2300}-\x{23FF}]`)

// ExtractEmojis returns every emoji occurrence in text, in order, with
// duplicates preserved.
func ExtractEmojis(text string) []string {
	return emojiPattern.FindAllString(text, -1)
}

// rankableEmoji excludes single ASCII digits, letters, and plain
// punctuation from the emoji ranking.
func rankableEmoji(s string) bool {
	if s == "" {
		return false
	}
	runes := []rune(s)
	if len(runes) == 1 {
		r := runes[0]
		if unicode.IsDigit(r) || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return false
		}
		if r < 0x2190 && unicode.IsPunct(r) {
			return false
		}
	}
	return true
}
