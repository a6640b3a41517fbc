package assistant

import (
	"strings"
	"unicode/utf8"
)

const moreDetailsSuffix = " Would you like me to provide more details?"

var sentenceEnders = []string{". ", "! ", "? "}

// FormatForVoice strips markdown decoration and truncates long answers at a
// sentence boundary so they read naturally when spoken aloud.
func FormatForVoice(text string, maxChars int) string {
	text = stripMarkdown(text)

	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	cut := -1
	window := truncateAtRune(text, maxChars)
	for _, ender := range sentenceEnders {
		if idx := strings.LastIndex(window, ender); idx > cut {
			cut = idx
		}
	}

	if cut > 0 {
		return text[:cut+1] + moreDetailsSuffix
	}

	// No sentence boundary in range. Cut at the last word instead.
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return text[:idx] + "." + moreDetailsSuffix
	}
	return window + moreDetailsSuffix
}

// truncateAtRune cuts text to at most maxBytes without splitting a rune.
func truncateAtRune(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	for maxBytes > 0 && !utf8.RuneStart(text[maxBytes]) {
		maxBytes--
	}
	return text[:maxBytes]
}

func stripMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"**", "",
		"*", "",
		"__", "",
		"`", "",
		"# ", "",
		"## ", "",
		"### ", "",
	)
	text = replacer.Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		lines = append(lines, line)
	}
	return strings.Join(lines, " ")
}
