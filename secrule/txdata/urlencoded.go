package txdata

import (
	"bytes"
	"errors"
	"io"

	"secwaf/encoding"
)

// Pair is a single key-value pair, in the order it appeared in the transaction.
type Pair struct {
	Key   string
	Value string
}

// Limits bounds how much of an url-encoded stream is read.
type Limits struct {
	MaxLengthField int
	MaxLengthTotal int
}

// DefaultLimits are the limits used when none are configured.
var DefaultLimits = Limits{
	MaxLengthField: 1024 * 20,
	MaxLengthTotal: 1024 * 1024 * 4,
}

// Errors returned when a limit is hit.
var (
	ErrFieldLengthExceeded = errors.New("field length limit exceeded")
	ErrTotalLengthExceeded = errors.New("total length limit exceeded")
)

// ParseURLEncoded reads key-value pairs like a=1&b=2 from r, and url-decodes them. Order is kept, and a pair without a value (a= or just a) has an empty value.
func ParseURLEncoded(r io.Reader, limits Limits) (pairs []Pair, err error) {
	lr := newMaxLengthReader(r, limits)
	d := newURLDecoder(lr)
	for {
		var key, val string
		key, val, err = d.next()
		if err == io.EOF {
			err = nil
			return
		}
		if err != nil {
			return
		}

		if key == "" && val == "" {
			continue
		}

		pairs = append(pairs, Pair{Key: encoding.WeakURLUnescape(key), Value: encoding.WeakURLUnescape(val)})
		lr.resetFieldReadCount()
	}
}

func newURLDecoder(r io.Reader) *urlDecoder {
	return &urlDecoder{
		r:     r,
		state: lookingForEq,
	}
}

type urldecoderState int

const (
	_ urldecoderState = iota
	lookingForEq
	foundEq
	endOfStream
)

type urlDecoder struct {
	r            io.Reader
	buf          bytes.Buffer
	state        urldecoderState
	scannedUntil int
	eqPos        int
}

func (d *urlDecoder) next() (key string, val string, err error) {
	if d.state == endOfStream {
		err = io.EOF
		return
	}

	for {
		bb := d.buf.Bytes()

		for i := d.scannedUntil; i < len(bb); i++ {
			if bb[i] == '=' && d.state == lookingForEq {
				d.eqPos = i
				d.state = foundEq
				continue
			}

			if bb[i] != '&' {
				continue
			}

			if d.state == foundEq {
				key = string(bb[:d.eqPos])
				val = string(bb[d.eqPos+1 : i])
			} else {
				// There was no equal-sign in this pair.
				key = string(bb[:i])
			}

			d.buf.Next(i + 1)
			d.state = lookingForEq
			d.scannedUntil = 0
			d.eqPos = 0
			return
		}

		d.scannedUntil = len(bb)

		// No complete pair buffered yet.
		var n int64
		n, err = d.buf.ReadFrom(io.LimitReader(d.r, 1000))
		if err != nil {
			return
		}

		if n > 0 {
			continue
		}

		// End of the stream. Whatever is left is the last pair.
		bb = d.buf.Bytes()
		if len(bb) == 0 {
			err = io.EOF
		} else if d.state == foundEq {
			key = string(bb[:d.eqPos])
			val = string(bb[d.eqPos+1:])
		} else {
			key = string(bb)
		}

		d.buf.Next(len(bb))
		d.state = endOfStream
		return
	}
}

// maxLengthReader is an io.Reader decorator, which enforces a max number of bytes to be read, both per field and in total.
type maxLengthReader struct {
	limits         Limits
	readCountField int
	readCountTotal int
	reader         io.Reader
}

func newMaxLengthReader(reader io.Reader, limits Limits) *maxLengthReader {
	return &maxLengthReader{reader: reader, limits: limits}
}

// Read behaves like io.Reader.Read, but returns errors on the call after the call where the max number of bytes was exceeded.
func (m *maxLengthReader) Read(p []byte) (n int, err error) {
	if m.readCountTotal >= m.limits.MaxLengthTotal {
		err = ErrTotalLengthExceeded
		return
	}

	if m.readCountField >= m.limits.MaxLengthField {
		err = ErrFieldLengthExceeded
		return
	}

	n, err = m.reader.Read(p)
	m.readCountField += n
	m.readCountTotal += n
	return
}

func (m *maxLengthReader) resetFieldReadCount() {
	m.readCountField = 0
}
