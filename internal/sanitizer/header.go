// Package sanitizer prepares user-supplied form fields for message headers.
package sanitizer

import "strings"

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// SingleLine folds CR and LF into spaces and trims the result. Use it for
// values that end up in message headers.
func SingleLine(text string) string {
	return strings.TrimSpace(lineBreaks.Replace(text))
}
