// Package content handles content-type labels and the text conventions for
// generated tasks. Content types are stored upper-case with underscores
// (BLOG_POST); their human form replaces underscores with spaces.
package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Normalize converts a free-form label into the stored form: "blog post" -> "BLOG_POST".
func Normalize(label string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(label), " ", "_"))
}

// Label converts a stored content type into its human form: "BLOG_POST" -> "Blog post".
func Label(contentType string) string {
	s := strings.ToLower(strings.ReplaceAll(contentType, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// TaskTitle builds the generated-task title, numbering from the existing count.
func TaskTitle(contentType string, n int) string {
	return fmt.Sprintf("%s #%d", Label(contentType), n)
}

// TaskDescription builds the generated-task description.
func TaskDescription(contentType, brandName string) string {
	return fmt.Sprintf("Create %s for %s", strings.ToLower(Label(contentType)), brandName)
}

// Rewrite replaces every occurrence of the old content type's spaced label in
// text with the new one, case-insensitively. Casing follows the first character
// of each match: an uppercase match gets a capitalized replacement, anything
// else gets lowercase. Applying the same mapping twice is not guaranteed to be
// a no-op; callers rewrite exactly once per type change.
func Rewrite(text, oldType, newType string) string {
	if text == "" {
		return ""
	}
	oldLabel := strings.ReplaceAll(oldType, "_", " ")
	newLabel := strings.ToLower(strings.ReplaceAll(newType, "_", " "))
	if oldLabel == "" || newLabel == "" {
		return text
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(oldLabel))
	return re.ReplaceAllStringFunc(text, func(match string) string {
		r := []rune(match)
		if len(r) > 0 && unicode.IsUpper(r[0]) {
			nr := []rune(newLabel)
			nr[0] = unicode.ToUpper(nr[0])
			return string(nr)
		}
		return newLabel
	})
}
