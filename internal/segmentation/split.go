package segmentation

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"scriptreel/internal/textutil"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// splitParagraphs splits on blank-line boundaries.
func splitParagraphs(text string) []string {
	return compact(paragraphBreak.Split(text, -1))
}

// splitSentences splits after '.', '!' or '?'. Runs of terminal punctuation
// and trailing closing quotes or brackets stay with their sentence. A break
// only happens when whitespace or the end of text follows, so "3.14" and
// "example.com" are not split.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		out = append(out, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return compact(out)
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

// chunkWords groups words into chunks of n.
func chunkWords(text string, n int) []string {
	words := strings.Fields(text)
	if n <= 0 {
		n = 8
	}
	out := make([]string, 0, len(words)/n+1)
	for i := 0; i < len(words); i += n {
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out
}

// compact collapses whitespace inside each unit and drops blank units.
func compact(units []string) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		if c := textutil.CollapseWhitespace(u); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// mergeForward folds every unit shorter than minLength into the unit after it.
// A short trailing unit is folded into the previous one instead. Content is
// never dropped: a script made of a single short unit yields that unit.
func mergeForward(units []string, minLength int) []string {
	if minLength <= 0 || len(units) == 0 {
		return units
	}
	out := make([]string, 0, len(units))
	carry := ""
	for _, u := range units {
		u = join(carry, u)
		carry = ""
		if runeLen(u) < minLength {
			carry = u
			continue
		}
		out = append(out, u)
	}
	if carry != "" {
		if len(out) > 0 {
			out[len(out)-1] = join(out[len(out)-1], carry)
		} else {
			out = append(out, carry)
		}
	}
	return out
}

// intelligentMerge repeatedly merges the adjacent pair with the smallest
// combined length until at most maxSegments remain. Ties go to the lowest
// index, which keeps the result reproducible. It returns the merged units and
// the number of merges performed.
func intelligentMerge(ctx context.Context, units []string, maxSegments int) ([]string, int, error) {
	if maxSegments <= 0 || len(units) <= maxSegments {
		return units, 0, nil
	}
	out := append([]string(nil), units...)
	lengths := make([]int, len(out))
	for i, u := range out {
		lengths[i] = runeLen(u)
	}
	merges := 0
	for len(out) > maxSegments {
		if merges%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, merges, err
			}
		}
		best := 0
		bestLen := lengths[0] + lengths[1]
		for i := 1; i < len(out)-1; i++ {
			if combined := lengths[i] + lengths[i+1]; combined < bestLen {
				best, bestLen = i, combined
			}
		}
		out[best] = join(out[best], out[best+1])
		lengths[best] = runeLen(out[best])
		out = append(out[:best+1], out[best+2:]...)
		lengths = append(lengths[:best+1], lengths[best+2:]...)
		merges++
	}
	return out, merges, nil
}
