package llm

import "strings"

// Sentinel tokens some models leak into their output.
var sentinelTokens = []string{"end_of_turn>", "<end_of_turn>", "</s>", "<s>"}

// CleanWords normalizes a model-suggested filename phrase: lowercase, hyphens
// become spaces, surrounding quotes and punctuation are stripped, leaked
// sentinel tokens are removed, and whitespace is collapsed.
func CleanWords(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.Trim(s, `"'.,!?`)
	for _, token := range sentinelTokens {
		s = strings.ReplaceAll(s, token, "")
	}
	return strings.Join(strings.Fields(s), " ")
}

// DatePart extracts the calendar date from a capture timestamp like
// "2025-10-30 08-01-42".
func DatePart(dateStr string) string {
	if dateStr == "" {
		return ""
	}
	if i := strings.IndexByte(dateStr, ' '); i >= 0 {
		return dateStr[:i]
	}
	return dateStr
}

// ComposeFilename joins the cleaned word phrase with the capture date into a
// .jpg filename. Either part may be empty; with neither, the generic
// "image.jpg" is returned so the caller always has a usable name.
func ComposeFilename(words, dateStr string) string {
	datePart := DatePart(dateStr)
	switch {
	case words != "" && datePart != "":
		return words + " " + datePart + ".jpg"
	case words != "":
		return words + ".jpg"
	case datePart != "":
		return "image " + datePart + ".jpg"
	default:
		return "image.jpg"
	}
}
