package dispatch

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// RenderTemplate substitutes {field} placeholders from data. A field absent
// from data renders as the empty string; a field that is present renders as
// its literal value, so "0" and "false" survive substitution intact.
func RenderTemplate(template string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		return data[m[1:len(m)-1]]
	})
}
