package parser

import (
	"regexp"
	"strings"
)

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// GJSONPath converts a field path written with array brackets into gjson dot
// notation, e.g. "[0].id" -> "0.id" and "items[0].tags[1]" -> "items.0.tags.1".
// Assertions and captures both read body fields through it.
func GJSONPath(path string) string {
	result := bracketIndex.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(result, ".")
}
