package util

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count the way the reader UI shows it,
// e.g. "1.5 MB". Zero or negative sizes render as "Unknown".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "Unknown"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// Truncate shortens s to max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}

// Preview returns the first n runes of a secret followed by "...".
func Preview(secret string, n int) string {
	if secret == "" {
		return "None"
	}
	r := []rune(secret)
	if len(r) <= n {
		return secret + "..."
	}
	return fmt.Sprintf("%s...", string(r[:n]))
}
