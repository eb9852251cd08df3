package ruleparsing

import (
	"bufio"
	"strings"
)

// Longest physical line accepted in a rule file. Some published rule sets carry very long regexes.
const maxLineLength = 1024 * 1024

// statementReader splits rule file content into statements. A statement continues on the next line when its line ends with a backslash.
type statementReader struct {
	sc   *bufio.Scanner
	line int
}

func newStatementReader(input string) *statementReader {
	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &statementReader{sc: sc}
}

// next returns the next statement and the line it started on. Continuation lines stay joined by a backslash and a newline, which skipSpace treats as whitespace.
// Comment lines are skipped, also in the middle of a continued statement.
func (r *statementReader) next() (stmt string, line int, ok bool) {
	var sb strings.Builder
	for r.sc.Scan() {
		r.line++
		lt := strings.TrimSpace(r.sc.Text())
		if lt == "" || lt[0] == '#' {
			continue
		}

		if sb.Len() == 0 {
			line = r.line
		}
		sb.WriteString(lt)
		if !strings.HasSuffix(lt, `\`) {
			break
		}
		sb.WriteString("\n")
	}

	stmt = sb.String()
	ok = stmt != ""
	return
}

// err returns the scanner error, such as a line longer than maxLineLength.
func (r *statementReader) err() error {
	return r.sc.Err()
}

// skipSpace drops leading blanks and line continuations.
func skipSpace(s string) string {
	for len(s) > 0 {
		switch {
		case s[0] == ' ' || s[0] == '\t':
			s = s[1:]
		case strings.HasPrefix(s, "\\\n"):
			s = s[2:]
		default:
			return s
		}
	}
	return s
}

func isWordChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// word splits off the leading run of word characters.
func word(s string) (w string, rest string) {
	i := 0
	for i < len(s) && isWordChar(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// quotedEnd returns the index just after the closing quote of the quoted string s starts with, or -1 if it is not terminated.
func quotedEnd(s string) int {
	q := s[0]
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i + 1
		}
	}
	return -1
}

// nextArg splits off a single or double quoted string, or a run of non-blank characters. Quoted strings are unescaped.
func nextArg(s string) (arg string, rest string) {
	if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		if end := quotedEnd(s); end != -1 {
			return unescape(s[1:end-1], s[0]), s[end:]
		}
	}

	i := strings.IndexAny(s, " \t")
	if i == -1 {
		return s, ""
	}
	return s[:i], s[i:]
}

// unescape resolves escaped quotes, escaped backslashes and line continuations. Other escapes are kept as they are, so regexes like \d survive.
func unescape(s string, quote byte) string {
	if strings.IndexByte(s, '\\') == -1 {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		switch c := s[i+1]; c {
		case quote, '\\':
			sb.WriteByte(c)
		case '\n':
			sb.WriteByte(' ')
		default:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		}
		i++
	}
	return sb.String()
}

// nextTarget splits off a single variable reference like "!&ARGS^1:'a b'", without interpreting it.
func nextTarget(s string) (target string, rest string) {
	i := 0
	if i < len(s) && s[i] == '!' {
		i++
	}
	if i < len(s) && s[i] == '&' {
		i++
	}

	name, _ := word(s[i:])
	if name == "" {
		return "", s
	}
	i += len(name)

	if i < len(s) && s[i] == '^' {
		digits, _ := word(s[i+1:])
		i += 1 + len(digits)
	}

	if i < len(s) && s[i] == ':' {
		i++
		if i < len(s) && s[i] == '\'' {
			if end := quotedEnd(s[i:]); end != -1 {
				i += end
				return s[:i], s[i:]
			}
		}
		for i < len(s) && !strings.ContainsRune("| \t\n,", rune(s[i])) {
			i++
		}
	}

	return s[:i], s[i:]
}

// nextAction splits off a single action like "id:100", "msg:'a, b'" or "deny". Quoted values lose their quotes but keep their escapes.
func nextAction(s string) (key string, val string, rest string, ok bool) {
	key, rest = word(s)
	if key == "" {
		return
	}
	ok = true

	if rest == "" || rest[0] != ':' {
		return
	}
	rest = rest[1:]

	if rest != "" && rest[0] == '\'' {
		if end := quotedEnd(rest); end != -1 {
			val, rest = rest[1:end-1], rest[end:]
			return
		}
	}

	i := strings.IndexByte(rest, ',')
	if i == -1 {
		i = len(rest)
	}
	val, rest = strings.TrimSpace(rest[:i]), rest[i:]
	return
}
