package storage

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// windowsDeviceNames cannot be used as file names on Windows.
var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true,
}

// SecureFilename returns an ASCII-only version of name that is safe to join to
// a directory: path separators become spaces, whitespace runs become a single
// underscore, unsafe characters are dropped and leading/trailing dots and
// underscores are trimmed. The result may be empty.
func SecureFilename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	cleaned = strings.NewReplacer("/", " ", "\\", " ").Replace(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = unsafeFilenameChars.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(cleaned, "._")

	if cleaned != "" {
		base := strings.ToUpper(strings.SplitN(cleaned, ".", 2)[0])
		if windowsDeviceNames[base] {
			cleaned = "_" + cleaned
		}
	}
	return cleaned
}
