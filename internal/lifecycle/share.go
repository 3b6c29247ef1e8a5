package lifecycle

import (
	"regexp"
	"strings"
)

var sharedURLPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractSharedLink picks the URL out of a share-target payload: the explicit
// url when present, otherwise the first http(s) token of text.
func ExtractSharedLink(title, text, url string) (string, bool) {
	if u := strings.TrimSpace(url); u != "" {
		return u, true
	}
	for _, s := range []string{text, title} {
		if m := sharedURLPattern.FindString(s); m != "" {
			return m, true
		}
	}
	return "", false
}
