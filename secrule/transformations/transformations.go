package transformations

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"secwaf/encoding"
)

// isWhitespace is what the SecRule-lang considers whitespace: ' ', \f, \t, \n, \r, \v and the non-breaking space 0xa0.
func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\f', '\t', '\n', '\r', '\v', 0xa0:
		return true
	}
	return false
}

// Utf8ToUnicode converts all UTF-8 characters sequences to Unicode using a %uHHHH syntax. This is what it should do according to the book ModSecurity Handbook.
func Utf8ToUnicode(dst []byte, input []byte) []byte {
	// Check first if there any UTF-8 sequences before we start doing memory allocations.
	hasUtf8 := false
	for _, b := range input {
		if b >= utf8.RuneSelf {
			hasUtf8 = true
			break
		}
	}
	if !hasUtf8 {
		return append(dst, input...)
	}

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRune(input[i:])
		if r >= utf8.RuneSelf && r != utf8.RuneError {
			dst = fmt.Appendf(dst, "%%u%04x", r)
		} else {
			// ASCII, or an invalid sequence which should remain untouched.
			dst = append(dst, input[i])
			size = 1
		}
		i += size
	}

	return dst
}

// incompleteUtf8Suffix tells how many bytes at the end of b could be the start of a UTF-8 sequence that continues in later input.
func incompleteUtf8Suffix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return len(b) - i
			}
			return 0
		}
	}
	return 0
}

// JsUnescape performs a Javascript unescape, appending the result to dst.
// Mostly based on https://www.ecma-international.org/ecma-262/6.0/#sec-literals-string-literals
// plus we imitate a little bit of special behaviour like ModSecurity has.
func JsUnescape(dst []byte, input []byte) []byte {
	// Don't bother if we know up front that there are no escape sequences.
	if bytes.IndexByte(input, '\\') == -1 {
		return append(dst, input...)
	}

	// States for the state machine below
	const (
		_ = iota
		notInEscape
		char1InEscape                  // \
		char1InHexEscape               // \x
		char2InHexEscape               // \xA
		char1InUnicodeHexEscape        // \u
		char2InUnicodeHexEscape        // \u4
		char3InUnicodeHexEscape        // \u4f
		char4InUnicodeHexEscape        // \u4f6
		inCurlyBracketUnicodeHexEscape // \u{ followed by 0 or more bytes, tracked by escapeStartPos.
		char2InOctalEscape             // \0
		char3InOctalEscape             // \00
	)
	state := notInEscape
	escapeStartPos := 0

	for i := 0; i < len(input); i++ {
		c := input[i]
		switch state {

		case notInEscape:
			if c == '\\' {
				state = char1InEscape
				escapeStartPos = i
			} else {
				dst = append(dst, c)
			}

		case char1InEscape:
			state = notInEscape
			switch c {
			case '\'', '"', '\\':
				dst = append(dst, c)
			case 'b':
				dst = append(dst, '\b')
			case 'f':
				dst = append(dst, '\f')
			case 'n':
				dst = append(dst, '\n')
			case 'r':
				dst = append(dst, '\r')
			case 't':
				dst = append(dst, '\t')
			case 'v':
				dst = append(dst, '\v')
			case 'x':
				state = char1InHexEscape
			case 'u':
				state = char1InUnicodeHexEscape
			default:
				if '0' <= c && c <= '7' {
					state = char2InOctalEscape
				} else {
					dst = append(dst, c) // Fallback to just writing the input without the \.
				}
			}

		case char1InHexEscape:
			if isHex(c) {
				state = char2InHexEscape
			} else {
				dst = append(dst, input[i-1:i+1]...)
				state = notInEscape
			}

		case char2InHexEscape:
			if isHex(c) {
				b, _ := strconv.ParseUint(string(input[i-1:i+1]), 16, 8)
				dst = append(dst, byte(b))
			} else {
				dst = append(dst, input[i-2:i+1]...)
			}
			state = notInEscape

		case char1InUnicodeHexEscape:
			if c == '{' {
				state = inCurlyBracketUnicodeHexEscape
			} else if isHex(c) {
				state = char2InUnicodeHexEscape
			} else {
				dst = append(dst, input[i-1:i+1]...)
				state = notInEscape
			}

		case char2InUnicodeHexEscape, char3InUnicodeHexEscape:
			if isHex(c) {
				state++
			} else {
				dst = append(dst, input[escapeStartPos+1:i+1]...)
				state = notInEscape
			}

		case char4InUnicodeHexEscape:
			if isHex(c) {
				r, _ := strconv.ParseInt(string(input[i-3:i+1]), 16, 64) // The prior four bytes were hex digits.
				r = encoding.UnicodeFullWidthToASCII(r)
				dst = utf8.AppendRune(dst, rune(r))
			} else {
				dst = append(dst, input[i-4:i+1]...)
			}
			state = notInEscape

		case inCurlyBracketUnicodeHexEscape:
			if c == '}' {
				r, err := strconv.ParseInt(string(input[escapeStartPos+3:i]), 16, 64)
				if r > utf8.MaxRune || err != nil {
					dst = append(dst, input[escapeStartPos+1:i+1]...)
				} else {
					r = encoding.UnicodeFullWidthToASCII(r)
					dst = utf8.AppendRune(dst, rune(r))
				}
				state = notInEscape
			} else if !isHex(c) {
				dst = append(dst, input[escapeStartPos+1:i+1]...)
				state = notInEscape
			}

		case char2InOctalEscape:
			if '0' <= c && c <= '7' {
				state = char3InOctalEscape
				continue
			}

			// Only one octal digit, such as \1.
			dst = append(dst, input[i-1]-'0')
			state = notInEscape
			if c == '\\' {
				state = char1InEscape
				escapeStartPos = i
			} else {
				dst = append(dst, c)
			}

		case char3InOctalEscape:
			if '0' <= c && c <= '7' {
				// Three octal digits, such as \001.
				b, _ := strconv.ParseUint(string(input[i-2:i+1]), 8, 16)
				dst = append(dst, byte(b))
				state = notInEscape
				continue
			}

			// Two octal digits, such as \01.
			b, _ := strconv.ParseUint(string(input[i-2:i]), 8, 8)
			dst = append(dst, byte(b))
			state = notInEscape
			if c == '\\' {
				state = char1InEscape
				escapeStartPos = i
			} else {
				dst = append(dst, c)
			}

		}
	}

	// Did the input end with an unfinished escape sequence?
	switch state {
	case notInEscape:
	case char2InOctalEscape, char3InOctalEscape:
		b, _ := strconv.ParseUint(string(input[escapeStartPos+1:]), 8, 8)
		dst = append(dst, byte(b))
	default:
		dst = append(dst, input[escapeStartPos+1:]...) // Fallback to just writing the input without the \.
	}

	return dst
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('A' <= c && c <= 'F') || ('a' <= c && c <= 'f')
}

// normalizePath removes self-references (./), back-references (../) and repeated slashes, keeping a trailing slash.
func normalizePath(dst []byte, input []byte) []byte {
	if len(input) == 0 {
		return dst
	}

	absolute := input[0] == '/'
	trailingSlash := input[len(input)-1] == '/'

	var segments [][]byte
	for _, seg := range bytes.Split(input, []byte{'/'}) {
		switch {
		case len(seg) == 0, bytes.Equal(seg, []byte(".")):
		case bytes.Equal(seg, []byte("..")):
			if len(segments) > 0 && !bytes.Equal(segments[len(segments)-1], []byte("..")) {
				segments = segments[:len(segments)-1]
			} else if !absolute {
				segments = append(segments, seg)
			}
		default:
			segments = append(segments, seg)
		}
	}

	if absolute {
		dst = append(dst, '/')
	}
	dst = append(dst, bytes.Join(segments, []byte{'/'})...)
	if trailingSlash && len(segments) > 0 {
		dst = append(dst, '/')
	}

	return dst
}

// normalizePathWin is normalizePath after converting backslashes to forward slashes.
func normalizePathWin(dst []byte, input []byte) []byte {
	return normalizePath(dst, bytes.ReplaceAll(input, []byte{'\\'}, []byte{'/'}))
}
