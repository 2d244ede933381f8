package textutil

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultCharsPerToken approximates tokenizer output for English prose.
const DefaultCharsPerToken = 4.0

// Ellipsis is appended to text shortened by TruncateToTokens.
const Ellipsis = "…"

// TokenEstimator sizes text in approximate model tokens.
type TokenEstimator struct {
	CharsPerToken float64
}

// NewTokenEstimator returns an estimator using charsPerToken, or the default when non-positive.
func NewTokenEstimator(charsPerToken float64) TokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return TokenEstimator{CharsPerToken: charsPerToken}
}

func (e TokenEstimator) ratio() float64 {
	if e.CharsPerToken <= 0 {
		return DefaultCharsPerToken
	}
	return e.CharsPerToken
}

// Estimate returns the approximate token count of text.
func (e TokenEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / e.ratio()))
}

// MaxChars returns the largest rune count whose estimate stays within tokens.
func (e TokenEstimator) MaxChars(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return int(math.Floor(float64(tokens) * e.ratio()))
}

// TruncateToTokens shortens text so that its estimate, including the trailing
// ellipsis, does not exceed limit. The cut prefers the last word boundary when
// one exists in the back half of the kept text. The second return value reports
// whether text was shortened.
func (e TokenEstimator) TruncateToTokens(text string, limit int) (string, bool) {
	if limit <= 0 || e.Estimate(text) <= limit {
		return text, false
	}
	budget := e.MaxChars(limit) - utf8.RuneCountInString(Ellipsis)
	if budget <= 0 {
		return Ellipsis, true
	}
	runes := []rune(text)
	if budget > len(runes) {
		budget = len(runes)
	}
	kept := runes[:budget]
	if cut := lastSpace(kept); cut > budget/2 {
		kept = kept[:cut]
	}
	out := strings.TrimRightFunc(string(kept), unicode.IsSpace)
	return out + Ellipsis, true
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// CountWords returns the number of whitespace-separated words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountChars returns the number of runes in text.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
