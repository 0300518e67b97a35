package advisor

import "strings"

// SanitizeSQL normalizes a model-generated SQL string down to one read-only
// statement. Markdown fences, backticks and SQL comments are stripped, only
// the first statement is kept, and anything that is not a balanced
// SELECT/WITH statement yields "".
func SanitizeSQL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = stripFences(s)
	s = strings.ReplaceAll(s, "`", "")
	s = stripComments(s)
	s = firstStatement(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	first := strings.ToUpper(firstWord(s))
	if first != "SELECT" && first != "WITH" {
		return ""
	}
	if !balanced(s) {
		return ""
	}
	return s
}

func stripFences(s string) string {
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	// a language tag left on its own line
	if lower := strings.ToLower(s); lower == "sql" {
		return ""
	} else if strings.HasPrefix(lower, "sql\n") {
		s = s[4:]
	}
	return strings.TrimSpace(s)
}

// stripComments removes -- line comments and /* */ blocks, leaving quoted
// strings untouched.
func stripComments(s string) string {
	var b strings.Builder
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)
		case !inSingle && !inDouble && c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case !inSingle && !inDouble && c == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// firstStatement cuts the input at the first semicolon outside quotes.
func firstStatement(s string) string {
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == ';' && !inSingle && !inDouble:
			return s[:i]
		}
	}
	return s
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// balanced verifies parenthesis nesting and closed quotes.
func balanced(s string) bool {
	depth := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && !inSingle && !inDouble
}
