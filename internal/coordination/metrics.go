package coordination

import (
	"strings"
	"unicode"
)

// Alignment measures how closely an expert's position matches the final
// decision as Jaccard similarity over token sets. Scoring each participant
// individually keeps performance history independent of the session's own
// consensus score.
func Alignment(position, decision string) float64 {
	a := alignmentTokens(position)
	b := alignmentTokens(decision)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func alignmentTokens(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
