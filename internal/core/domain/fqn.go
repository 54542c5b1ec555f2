package domain

import "strings"

// FQNSeparator joins the segments of a fully qualified name.
const FQNSeparator = "."

// SplitFQN splits a fully qualified name into its segments. Segments that
// contain the separator are quoted with double quotes; the quotes are kept
// on the returned segment so BuildFQN(SplitFQN(x)...) == x.
func SplitFQN(fqn string) []string {
	if fqn == "" {
		return nil
	}
	var parts []string
	var b strings.Builder
	quoted := false
	for _, r := range fqn {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == '.' && !quoted:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(parts, b.String())
}

// BuildFQN joins segments, quoting any segment that contains the separator.
func BuildFQN(segments ...string) string {
	quoted := make([]string, len(segments))
	for i, s := range segments {
		quoted[i] = QuoteFQNSegment(s)
	}
	return strings.Join(quoted, FQNSeparator)
}

// QuoteFQNSegment quotes a segment that contains the separator.
func QuoteFQNSegment(s string) string {
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) > 1 {
		return s
	}
	if strings.Contains(s, FQNSeparator) {
		return `"` + s + `"`
	}
	return s
}

// ParentFQN returns the FQN without its last segment, or "" for a root name.
func ParentFQN(fqn string) string {
	parts := SplitFQN(fqn)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], FQNSeparator)
}

// FQNAncestors returns every strict prefix of fqn, shortest first.
func FQNAncestors(fqn string) []string {
	parts := SplitFQN(fqn)
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], FQNSeparator))
	}
	return out
}

// FQNPrefix returns the prefix used to match every entity nested under fqn.
func FQNPrefix(fqn string) string {
	return fqn + FQNSeparator
}
