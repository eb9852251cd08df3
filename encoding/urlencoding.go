package encoding

import (
	"unicode/utf8"
)

// IsValidURLEncoding checks whether the given string contains all valid URL-encoded escapes.
func IsValidURLEncoding(content string) bool {
	type validateURLEncodingState int
	const (
		_ validateURLEncodingState = iota
		notInEscape
		char1InEscape // This means we've have so far seen something like %
		char2InEscape // This means we've have so far seen something like %2
	)
	state := notInEscape

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch state {
		case notInEscape:
			if c == '%' {
				state = char1InEscape
			}
		case char1InEscape:
			if !isHexChar(c) {
				return false
			}
			state = char2InEscape
		case char2InEscape:
			if !isHexChar(c) {
				return false
			}
			state = notInEscape
		}
	}

	return state == notInEscape
}

// WeakURLUnescape attempts to URL-unescape, but if there are any values that could not be URL-unescaped, they will be left as is.
func WeakURLUnescape(s string) string {
	u := URLUnescaper{}
	return string(u.Unescape(nil, []byte(s), true))
}

// URLUnescaper is a resumable lenient URL decoder. Input may be fed in any number of pieces; an escape sequence cut off at the end of a piece is held back until the next piece arrives.
// With Uni set, %uHHHH sequences are decoded as well.
type URLUnescaper struct {
	Uni bool

	// Bytes of an escape sequence that is not finished yet. Always starts with '%' when non-empty.
	pending []byte
}

// Pending tells how many bytes are currently held back.
func (u *URLUnescaper) Pending() int {
	return len(u.pending)
}

// Unescape decodes src and appends the result to dst. Unless endOfStream is set, an unfinished escape sequence at the end of src is kept for the next call.
func (u *URLUnescaper) Unescape(dst []byte, src []byte, endOfStream bool) []byte {
	for i := 0; i < len(src); i++ {
		c := src[i]

		if len(u.pending) == 0 {
			switch c {
			case '%':
				u.pending = append(u.pending, c)
			case '+':
				dst = append(dst, ' ')
			default:
				dst = append(dst, c)
			}
			continue
		}

		u.pending = append(u.pending, c)
		var done bool
		dst, done = u.step(dst)
		if done {
			u.pending = u.pending[:0]
		}
	}

	if endOfStream && len(u.pending) > 0 {
		// The input ended with an unfinished escape sequence, so it is left as is.
		dst = append(dst, u.pending...)
		u.pending = u.pending[:0]
	}

	return dst
}

// step looks at the pending escape sequence after a byte was added to it, and emits output once the sequence is decided.
func (u *URLUnescaper) step(dst []byte) ([]byte, bool) {
	p := u.pending
	n := len(p)
	c := p[n-1]

	if u.Uni && n >= 2 && (p[1] == 'u' || p[1] == 'U') {
		// %uHHHH
		if n == 2 {
			return dst, false
		}
		if !isHexChar(c) {
			// This was not valid URL encoding, so we will just leave the bytes as is.
			return append(dst, p...), true
		}
		if n < 6 {
			return dst, false
		}
		r := rune(unhex(p[2]))<<12 | rune(unhex(p[3]))<<8 | rune(unhex(p[4]))<<4 | rune(unhex(p[5]))
		r = rune(UnicodeFullWidthToASCII(int64(r)))
		if r < utf8.RuneSelf {
			return append(dst, byte(r)), true
		}
		return utf8.AppendRune(dst, r), true
	}

	if !isHexChar(c) {
		// This was not valid URL encoding, so we will just leave the bytes as is.
		return append(dst, p...), true
	}
	if n < 3 {
		return dst, false
	}
	return append(dst, unhex(p[1])<<4|unhex(p[2])), true
}

// UnicodeFullWidthToASCII maps full width characters (ff01 - ff5e) to the corresponding ASCII characters, like ModSecurity does.
func UnicodeFullWidthToASCII(r int64) int64 {
	if r >= 0xff01 && r <= 0xff5e {
		// The first printable char in ASCII is 0x20, and corresponds to 0xFF00.
		lowestByte := r & 0xff
		r = lowestByte + 0x20
	}
	return r
}

func isHexChar(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Copied from Go's standard library net/url/url.go.
func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
