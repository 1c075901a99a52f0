package source

// readers.go cleans sheet exports before CSV parsing:
//
//   - bomReader drops a leading UTF-8 byte order mark (Excel adds one)
//   - sanitizingReader replaces invalid UTF-8 bytes with '?'
//   - countingReader tracks bytes read for logging
//
// Use wrap to apply all three in order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomReader skips a UTF-8 BOM at the start of the stream.
type bomReader struct {
	r       *bufio.Reader
	checked bool
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: bufio.NewReader(r)}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			if _, err := b.r.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return b.r.Read(p)
}

// sanitizingReader decodes runes and writes '?' for every byte that is not
// valid UTF-8. Multi-byte runes split across reads are handled by bufio.
type sanitizingReader struct {
	r   *bufio.Reader
	buf []byte
}

func newSanitizingReader(r io.Reader) *sanitizingReader {
	return &sanitizingReader{r: bufio.NewReader(r)}
}

func (s *sanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.buf) < len(p) {
		r, size, err := s.r.ReadRune()
		if err != nil {
			if len(s.buf) == 0 {
				return 0, err
			}
			break
		}
		if r == utf8.RuneError && size == 1 {
			s.buf = append(s.buf, '?')
			continue
		}
		s.buf = utf8.AppendRune(s.buf, r)
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// wrap strips the BOM, then sanitizes, then counts.
func wrap(r io.Reader) *countingReader {
	return &countingReader{r: newSanitizingReader(newBOMReader(r))}
}
