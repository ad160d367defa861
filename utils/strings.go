package utils

import (
	"strings"
)

var htmlEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;", "&", "&amp;", "\"", "&quot;")

// EscapeHTMLEntities returns a string in which HTML entities are escaped as required by Telegram: <>&
// Double quotes are escaped too so the result can be used in attributes
func EscapeHTMLEntities(s string) string {
	return htmlEscaper.Replace(s)
}
