package events

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize converts an event name to camelCase so that "player-leave",
// "PlayerLeave", "player_leave" and "playerLeave" all name the same event.
func Normalize(name string) string {
	return CamelCase(name)
}

// CamelCase joins the words of s as lowerCamelCase. Words are separated by
// any non-alphanumeric rune and by case transitions ("HTTPServer" is two
// words).
func CamelCase(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return ""
	}

	// Casers are stateful; build them per call.
	lower := cases.Lower(language.Und)
	title := cases.Title(language.Und)

	var b strings.Builder
	b.WriteString(lower.String(words[0]))
	for _, w := range words[1:] {
		b.WriteString(title.String(w))
	}
	return b.String()
}

func splitWords(s string) []string {
	var words []string
	runes := []rune(s)
	start := -1
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			if start >= 0 {
				words = append(words, string(runes[start:i]))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		if unicode.IsUpper(r) {
			lowerBefore := unicode.IsLower(prev) || unicode.IsDigit(prev)
			acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if lowerBefore || acronymEnd {
				words = append(words, string(runes[start:i]))
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, string(runes[start:]))
	}
	return words
}
