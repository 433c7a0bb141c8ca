package utils

import "strings"

// ShortenString cuts s after l runes and marks the cut with "...".
// An l of 0 means no limit.
func ShortenString(s string, l int) string {
	if l <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= l {
		return s
	}
	return string(r[:l]) + "..."
}

var trademarkReplacer = strings.NewReplacer("™", "", "®", "")

// Anchor turns a section name like "F-150® PRICES" into an html id.
func Anchor(s string) string {
	return strings.ReplaceAll(trademarkReplacer.Replace(s), " ", "_")
}

// NormalizeLabel makes menu labels comparable across sites: trademark
// signs are dropped, whitespace collapsed and the result upper cased.
func NormalizeLabel(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(trademarkReplacer.Replace(s)), " "))
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	result := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// FirstLine returns s up to the first line break.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
