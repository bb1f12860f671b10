package descriptors

import "strings"

// parseCall splits a top-level "name(args)" descriptor form into its
// function name and argument text, exactly as splitArgs does one level
// down inside miniscript. addr() and key-only forms have no nested
// parens to worry about, but sh(wpkh(...)) and tr(KEY,{...}) do, so this
// still has to be depth-aware.
func parseCall(s string) (name, inner string, ok bool) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return "", "", false
	}
	return s[:open], s[open+1 : len(s)-1], true
}

// splitTopLevelComma splits a "KEY,TREE" argument list on its single
// top-level comma (the only place spec.md's grammar ever needs one:
// tr(KEY,TREE)), leaving commas nested inside the tree's own braces and
// parens untouched.
func splitTopLevelComma(s string) (left, right string, ok bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return "", "", false
}
