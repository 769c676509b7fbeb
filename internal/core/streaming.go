package core

// streaming.go wraps upload bodies for constant-memory CSV parsing:
//
//   - countingReader: counts raw bytes and enforces the upload size limit
//   - utf8Sanitizer: replaces invalid UTF-8 with U+FFFD as bytes stream by
//   - uploadReader: buffered view over both, with the UTF-8 BOM dropped
//
// The buffered reader is shared by the delimiter sniffer (Peek) and the CSV
// parser so the sampled prefix is never read twice from the source.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const streamChunkSize = 32 * 1024

// countingReader counts bytes read and fails once more than limit bytes
// have been seen. A non-positive limit disables the check.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.limit > 0 && c.n > c.limit {
		return 0, c.tooLarge()
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		return n, c.tooLarge()
	}
	return n, err
}

func (c *countingReader) tooLarge() error {
	return fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, c.limit)
}

// utf8Sanitizer decodes its source incrementally. A multi-byte sequence
// split across reads is held back until it completes, so only genuinely
// invalid bytes are replaced.
type utf8Sanitizer struct {
	r       io.Reader
	scratch []byte
	raw     []byte // undecoded tail of the previous chunk
	out     []byte // decoded bytes not yet returned
	outBuf  []byte
	err     error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, scratch: make([]byte, streamChunkSize)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			if len(s.raw) == 0 {
				return 0, s.err
			}
			s.out = s.decode(true)
			continue
		}
		n, err := s.r.Read(s.scratch)
		s.raw = append(s.raw, s.scratch[:n]...)
		s.err = err
		s.out = s.decode(err != nil)
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// decode moves every complete rune from raw to the output buffer. With
// final set, an incomplete trailing sequence is replaced too.
func (s *utf8Sanitizer) decode(final bool) []byte {
	out := s.outBuf[:0]
	i := 0
	for i < len(s.raw) {
		b := s.raw[i]
		if b < utf8.RuneSelf {
			out = append(out, b)
			i++
			continue
		}
		if !final && !utf8.FullRune(s.raw[i:]) {
			break
		}
		r, size := utf8.DecodeRune(s.raw[i:])
		if r == utf8.RuneError && size == 1 {
			out = utf8.AppendRune(out, utf8.RuneError)
		} else {
			out = append(out, s.raw[i:i+size]...)
		}
		i += size
	}
	s.raw = append(s.raw[:0], s.raw[i:]...)
	s.outBuf = out
	return out
}

// uploadReader is the buffered, sanitized view of an upload body.
type uploadReader struct {
	*bufio.Reader
	counter *countingReader
}

// newUploadReader wraps r, enforcing limit on the raw byte count. bufSize
// must cover the delimiter sniff sample.
func newUploadReader(r io.Reader, limit int64, bufSize int) (*uploadReader, error) {
	counter := &countingReader{r: r, limit: limit}
	br := bufio.NewReaderSize(newUTF8Sanitizer(counter), bufSize)

	head, err := br.Peek(len(utf8BOM))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	if bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
	}
	return &uploadReader{Reader: br, counter: counter}, nil
}

// BytesRead returns the raw bytes consumed from the source so far.
func (u *uploadReader) BytesRead() int64 {
	return u.counter.n
}
