// Package branch resolves whether a user's configured branch set grants
// access to an application's branch.
package branch

import "strings"

// Wildcard tokens meaning "all branches".
const (
	WildcardAll  = "all"
	WildcardStar = "*"
)

// ParseSet splits a comma-separated branch list into trimmed names. Empty
// segments are dropped.
func ParseSet(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasWildcard reports whether the set contains the all-branches marker.
func HasWildcard(set []string) bool {
	for _, b := range set {
		lb := strings.ToLower(strings.TrimSpace(b))
		if lb == WildcardAll || lb == WildcardStar {
			return true
		}
	}
	return false
}

// Matches reports whether the branch set grants access to the given branch.
// Matching is case-insensitive and tolerates short-form vs. full branch
// names: a configured "Didube" matches application branch "Didube Branch
// Office", and the application branch's first word may match a configured
// name. This is a known approximation across similarly-named branches, not a
// guarantee of exact identity.
func Matches(set []string, branch string) bool {
	lb := strings.ToLower(strings.TrimSpace(branch))
	firstWord := lb
	if i := strings.IndexByte(lb, ' '); i > 0 {
		firstWord = lb[:i]
	}
	for _, b := range set {
		sb := strings.ToLower(strings.TrimSpace(b))
		if sb == "" {
			continue
		}
		if sb == WildcardAll || sb == WildcardStar {
			return true
		}
		if lb == "" {
			continue
		}
		if strings.Contains(lb, sb) || strings.Contains(sb, firstWord) {
			return true
		}
	}
	return false
}
