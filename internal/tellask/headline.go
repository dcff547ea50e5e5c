package tellask

import (
	"regexp"
	"strings"
)

var (
	mentionRe    = regexp.MustCompile(`(^|\s)@([a-zA-Z][a-zA-Z0-9_-]*)`)
	sessionIDRe  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*(\.[a-zA-Z][a-zA-Z0-9_-]*)*$`)
	directiveRe  = regexp.MustCompile(`!tellaskSession(\s+(\S+))?`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Mentions extracts the @-mention names of a headline, deduplicated in
// first-appearance order.
func Mentions(head string) []string {
	matches := mentionRe.FindAllStringSubmatch(head, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		name := m[2]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// FirstMention returns the first @-mention of a headline, or "".
func FirstMention(head string) string {
	if ms := Mentions(head); len(ms) > 0 {
		return ms[0]
	}
	return ""
}

// SessionDirectives returns the identifiers of every !tellaskSession
// directive in the headline. Invalid or missing identifiers come back as
// empty strings so callers can distinguish "no directive" from "bad one".
func SessionDirectives(head string) []string {
	var out []string
	for _, m := range directiveRe.FindAllStringSubmatch(head, -1) {
		id := m[2]
		if !ValidSessionID(id) {
			id = ""
		}
		out = append(out, id)
	}
	return out
}

// ValidSessionID reports whether id matches the tellaskSession grammar:
// segments of [a-zA-Z][a-zA-Z0-9_-]* joined by dots.
func ValidSessionID(id string) bool {
	return id != "" && sessionIDRe.MatchString(id)
}

// RewriteMention replaces mention @from with @to throughout the headline.
func RewriteMention(head, from, to string) string {
	return mentionRe.ReplaceAllStringFunc(head, func(tok string) string {
		sub := mentionRe.FindStringSubmatch(tok)
		if sub[2] == from {
			return sub[1] + "@" + to
		}
		return tok
	})
}

// StripSessionDirective removes every !tellaskSession directive from the
// headline, normalizing whitespace. Used when deriving FBR session pools.
func StripSessionDirective(head string) string {
	out := directiveRe.ReplaceAllString(head, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(out, " "))
}
