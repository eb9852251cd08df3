package transformations

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"hash"
	"strconv"

	"secwaf/encoding"
	ast "secwaf/secrule/ast"

	"golang.org/x/net/html"
)

// stage is the resumable state of one transformation while a value flows through it.
// feed appends the output for in to dst. Bytes that cannot be decided yet may be withheld until a later call, but with endOfStream set everything must be flushed.
// A stage must not keep references to in.
type stage interface {
	feed(dst []byte, in []byte, endOfStream bool) ([]byte, error)
	release()
}

// errInvalidHex is returned by hexDecode on input that is not hex encoded.
var errInvalidHex = errors.New("invalid hex encoding")

// Capability table of all transformations. Each entry creates a fresh stage.
var registry = map[ast.Transformation]func() stage{
	ast.CompressWhitespace: func() stage { return &compressWhitespaceStage{} },
	ast.HexDecode:          func() stage { return &hexDecodeStage{} },
	ast.HexEncode:          func() stage { return byteMapStage(hexEncodeByte) },
	ast.HTMLEntityDecode:   func() stage { return &htmlEntityDecodeStage{} },
	ast.JsDecode:           func() stage { return &wholeInputStage{f: JsUnescape} },
	ast.Length:             func() stage { return &lengthStage{} },
	ast.Lowercase:          func() stage { return byteMapStage(lowercaseByte) },
	ast.NormalizePath:      func() stage { return &wholeInputStage{f: normalizePath} },
	ast.NormalizePathWin:   func() stage { return &wholeInputStage{f: normalizePathWin} },
	ast.RemoveNulls:        func() stage { return byteMapStage(removeNullsByte) },
	ast.RemoveWhitespace:   func() stage { return byteMapStage(removeWhitespaceByte) },
	ast.ReplaceNulls:       func() stage { return byteMapStage(replaceNullsByte) },
	ast.Sha1:               func() stage { return &sha1Stage{h: sha1.New()} },
	ast.Trim:               func() stage { return &trimStage{} },
	ast.TrimLeft:           func() stage { return &trimLeftStage{} },
	ast.TrimRight:          func() stage { return &trimRightStage{} },
	ast.Uppercase:          func() stage { return byteMapStage(uppercaseByte) },
	ast.URLDecode:          func() stage { return &urlDecodeStage{} },
	ast.URLDecodeUni:       func() stage { return &urlDecodeStage{u: encoding.URLUnescaper{Uni: true}} },
	ast.Utf8toUnicode:      func() stage { return &utf8ToUnicodeStage{} },
}

// Supported tells whether a transformation can be used in a pipeline.
func Supported(t ast.Transformation) bool {
	_, ok := registry[t]
	return ok
}

// byteMapStage is for transformations where every input byte maps to output independently of its neighbours.
type byteMapStage func(dst []byte, c byte) []byte

func (f byteMapStage) feed(dst []byte, in []byte, _ bool) ([]byte, error) {
	for _, c := range in {
		dst = f(dst, c)
	}
	return dst, nil
}

func (f byteMapStage) release() {}

func lowercaseByte(dst []byte, c byte) []byte {
	if 'A' <= c && c <= 'Z' {
		c += 'a' - 'A'
	}
	return append(dst, c)
}

func uppercaseByte(dst []byte, c byte) []byte {
	if 'a' <= c && c <= 'z' {
		c -= 'a' - 'A'
	}
	return append(dst, c)
}

func removeNullsByte(dst []byte, c byte) []byte {
	if c == 0 {
		return dst
	}
	return append(dst, c)
}

func replaceNullsByte(dst []byte, c byte) []byte {
	if c == 0 {
		c = ' '
	}
	return append(dst, c)
}

func removeWhitespaceByte(dst []byte, c byte) []byte {
	if isWhitespace(c) {
		return dst
	}
	return append(dst, c)
}

const hexDigits = "0123456789abcdef"

func hexEncodeByte(dst []byte, c byte) []byte {
	return append(dst, hexDigits[c>>4], hexDigits[c&0x0f])
}

type compressWhitespaceStage struct {
	inWhitespace bool
}

func (s *compressWhitespaceStage) feed(dst []byte, in []byte, _ bool) ([]byte, error) {
	for _, c := range in {
		if !isWhitespace(c) {
			dst = append(dst, c)
			s.inWhitespace = false
			continue
		}
		if !s.inWhitespace {
			dst = append(dst, ' ')
			s.inWhitespace = true
		}
	}
	return dst, nil
}

func (s *compressWhitespaceStage) release() {}

type trimLeftStage struct {
	started bool
}

func (s *trimLeftStage) feed(dst []byte, in []byte, _ bool) ([]byte, error) {
	if !s.started {
		i := 0
		for i < len(in) && isWhitespace(in[i]) {
			i++
		}
		if i == len(in) {
			return dst, nil
		}
		in = in[i:]
		s.started = true
	}
	return append(dst, in...), nil
}

func (s *trimLeftStage) release() {}

// trimRightStage withholds trailing whitespace, as it is unknown whether more non-whitespace follows.
type trimRightStage struct {
	pending []byte
}

func (s *trimRightStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	last := len(in) - 1
	for last >= 0 && isWhitespace(in[last]) {
		last--
	}

	if last >= 0 {
		dst = append(dst, s.pending...)
		dst = append(dst, in[:last+1]...)
		s.pending = s.pending[:0]
	}
	s.pending = append(s.pending, in[last+1:]...)

	if endOfStream {
		s.pending = s.pending[:0]
	}
	return dst, nil
}

func (s *trimRightStage) release() {
	s.pending = nil
}

type trimStage struct {
	left  trimLeftStage
	right trimRightStage
	buf   []byte
}

func (s *trimStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	s.buf, _ = s.left.feed(s.buf[:0], in, endOfStream)
	return s.right.feed(dst, s.buf, endOfStream)
}

func (s *trimStage) release() {
	s.right.release()
	s.buf = nil
}

type urlDecodeStage struct {
	u encoding.URLUnescaper
}

func (s *urlDecodeStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	return s.u.Unescape(dst, in, endOfStream), nil
}

func (s *urlDecodeStage) release() {}

// htmlEntityDecodeStage withholds a trailing entity that might continue in the next chunk.
type htmlEntityDecodeStage struct {
	pending []byte
}

func (s *htmlEntityDecodeStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	data := append(s.pending, in...)
	cut := len(data)
	if !endOfStream {
		cut = openEntityStart(data)
	}

	if bytes.IndexByte(data[:cut], '&') == -1 {
		dst = append(dst, data[:cut]...)
	} else {
		dst = append(dst, html.UnescapeString(string(data[:cut]))...)
	}

	s.pending = append(s.pending[:0:0], data[cut:]...)
	return dst, nil
}

func (s *htmlEntityDecodeStage) release() {
	s.pending = nil
}

// openEntityStart finds where a trailing character reference begins, if it could still grow. Returns len(b) otherwise.
func openEntityStart(b []byte) int {
	amp := bytes.LastIndexByte(b, '&')
	if amp == -1 {
		return len(b)
	}
	for _, c := range b[amp+1:] {
		if !(isHex(c) || ('g' <= c && c <= 'z') || ('G' <= c && c <= 'Z') || c == '#') {
			return len(b)
		}
	}
	return amp
}

type utf8ToUnicodeStage struct {
	pending []byte
}

func (s *utf8ToUnicodeStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	data := append(s.pending, in...)
	cut := len(data)
	if !endOfStream {
		cut -= incompleteUtf8Suffix(data)
	}

	dst = Utf8ToUnicode(dst, data[:cut])
	s.pending = append(s.pending[:0:0], data[cut:]...)
	return dst, nil
}

func (s *utf8ToUnicodeStage) release() {
	s.pending = nil
}

type hexDecodeStage struct {
	half    byte
	hasHalf bool
}

func (s *hexDecodeStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	for _, c := range in {
		if !isHex(c) {
			return dst, errInvalidHex
		}
		if !s.hasHalf {
			s.half = c
			s.hasHalf = true
			continue
		}
		var b [1]byte
		hex.Decode(b[:], []byte{s.half, c})
		dst = append(dst, b[0])
		s.hasHalf = false
	}

	if endOfStream && s.hasHalf {
		return dst, errInvalidHex
	}
	return dst, nil
}

func (s *hexDecodeStage) release() {}

type lengthStage struct {
	n int
}

func (s *lengthStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	s.n += len(in)
	if endOfStream {
		dst = strconv.AppendInt(dst, int64(s.n), 10)
	}
	return dst, nil
}

func (s *lengthStage) release() {}

type sha1Stage struct {
	h hash.Hash
}

func (s *sha1Stage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	s.h.Write(in)
	if endOfStream {
		dst = s.h.Sum(dst)
	}
	return dst, nil
}

func (s *sha1Stage) release() {
	s.h = nil
}

// wholeInputStage is for transformations whose output at one position can depend on input arbitrarily far away. It withholds everything until the end of the stream.
type wholeInputStage struct {
	f   func(dst []byte, in []byte) []byte
	buf []byte
}

func (s *wholeInputStage) feed(dst []byte, in []byte, endOfStream bool) ([]byte, error) {
	s.buf = append(s.buf, in...)
	if !endOfStream {
		return dst, nil
	}
	dst = s.f(dst, s.buf)
	s.buf = s.buf[:0]
	return dst, nil
}

func (s *wholeInputStage) release() {
	s.buf = nil
}
