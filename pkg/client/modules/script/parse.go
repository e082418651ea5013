package script

import (
	"cmp"
	"strconv"
	"strings"
)

// split cuts a line at semicolons outside braces.
func split(line string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range line {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				out = appendTrimmed(out, line[start:i])
				start = i + 1
			}
		}
	}
	return appendTrimmed(out, line[start:])
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

// args splits s into at most n arguments. A braced group is one argument
// with its outer braces removed; the last argument takes the rest of the line.
func args(s string, n int) []string {
	var out []string
	s = strings.TrimSpace(s)
	for s != "" && len(out) < n-1 {
		var tok string
		tok, s = next(s)
		out = append(out, tok)
		s = strings.TrimSpace(s)
	}
	if s != "" {
		out = append(out, unbrace(s))
	}
	return out
}

func next(s string) (tok, rest string) {
	if s[0] == '{' {
		depth := 0
		for i, r := range s {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[1:i], s[i+1:]
				}
			}
		}
		return s[1:], ""
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func unbrace(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		if tok, rest := next(s); strings.TrimSpace(rest) == "" {
			return tok
		}
	}
	return s
}

// expandVars replaces $name with the variable's value. Unknown variables
// are left as written.
func expandVars(s string, lookup func(string) (string, bool)) string {
	if !strings.Contains(s, "$") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			b.WriteByte(s[i])
			continue
		}
		j := i + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			continue
		}
		if v, ok := lookup(s[i+1 : j]); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i:j])
		}
		i = j - 1
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// expandParams replaces %0..%9 with captures; %0 is the whole match or
// argument string.
func expandParams(s string, params []string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			if n := int(s[i+1] - '0'); n < len(params) {
				b.WriteString(params[n])
			}
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

var comparators = []string{"==", "!=", "<=", ">=", "<", ">"}

// eval reports whether cond holds. Comparisons are numeric when both sides
// are integers and textual otherwise; a bare operand is true unless empty
// or "0".
func eval(cond string) bool {
	cond = strings.TrimSpace(cond)
	for _, op := range comparators {
		i := strings.Index(cond, op)
		if i < 0 {
			continue
		}
		l := strings.TrimSpace(cond[:i])
		r := strings.TrimSpace(cond[i+len(op):])
		c := strings.Compare(l, r)
		if li, lerr := strconv.Atoi(l); lerr == nil {
			if ri, rerr := strconv.Atoi(r); rerr == nil {
				c = cmp.Compare(li, ri)
			}
		}
		switch op {
		case "==":
			return c == 0
		case "!=":
			return c != 0
		case "<=":
			return c <= 0
		case ">=":
			return c >= 0
		case "<":
			return c < 0
		default:
			return c > 0
		}
	}
	return cond != "" && cond != "0"
}
