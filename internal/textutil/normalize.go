package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText prepares raw script text for segmentation: NFC composition,
// LF line endings, and no trailing whitespace on any line. Leading and trailing
// blank lines are removed.
func NormalizeText(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t ")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// NormalizePrompt returns the canonical form of a generation prompt: NFC
// composition with every whitespace run collapsed to a single space.
// Two prompts that differ only in spacing or Unicode composition normalize identically.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(norm.NFC.String(prompt)), " ")
}

// CollapseWhitespace joins the fields of text with single spaces.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
