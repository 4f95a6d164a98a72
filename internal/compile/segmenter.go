package compile

import (
	"regexp"
	"strings"
)

// splitRe separates a request into step phrases on punctuation and the
// conjunction set. "and then" must come before "and" and "then" in the
// alternation so the longer conjunction wins.
var splitRe = regexp.MustCompile(`(?i)\s*(?:[,;]|\band\s+then\b|\bafter\s+that\b|\bthen\b|\bnext\b|\balso\b|\bfinally\b|\band\b)\s*`)

// searchTailRe matches a phrase that is entirely "search for <term>".
var searchTailRe = regexp.MustCompile(`(?i)^search\s+for\s+(.+)$`)

// Segment splits a natural-language request into ordered step phrases.
//
// Separators inside parentheses or between digit groups are literal text,
// not step boundaries, so "click on (120, 340)" stays one phrase. A request
// whose final phrase is "search for <term>" expands that phrase to a
// 2-second wait (the page the prior step navigated to needs load time), a
// type step, and an Enter press. Empty fragments after trimming are
// dropped silently.
func Segment(request string) []string {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil
	}

	phrases := splitPhrases(request)
	if n := len(phrases); n > 0 {
		if m := searchTailRe.FindStringSubmatch(phrases[n-1]); m != nil {
			if term := strings.TrimSpace(m[1]); term != "" {
				phrases = append(phrases[:n-1],
					"wait 2 seconds", "type "+term, "press enter")
			}
		}
	}
	return phrases
}

// splitPhrases cuts the request at every unprotected separator match and
// drops empty fragments.
func splitPhrases(request string) []string {
	var phrases []string
	keep := func(frag string) {
		frag = strings.TrimSpace(frag)
		if frag != "" {
			phrases = append(phrases, frag)
		}
	}

	last := 0
	for _, m := range splitRe.FindAllStringIndex(request, -1) {
		if protectedBreak(request, m[0], m[1]) {
			continue
		}
		keep(request[last:m[0]])
		last = m[1]
	}
	keep(request[last:])
	return phrases
}

// protectedBreak reports whether the separator at [start,end) sits inside
// an open parenthesis or joins two digit groups, as in a coordinate pair.
func protectedBreak(request string, start, end int) bool {
	depth := 0
	for _, r := range request[:start] {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
	}
	if depth > 0 {
		return true
	}
	return strings.Contains(request[start:end], ",") &&
		start > 0 && isDigit(request[start-1]) &&
		end < len(request) && isDigit(request[end])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
