package core

// input.go prepares uploaded bytes for the parser.
//
// Uploaded CSV files commonly carry a UTF-8 byte order mark from Windows
// tools and occasionally contain bytes that are not valid UTF-8. The reader
// below strips the BOM, replaces each invalid sequence with '?', and enforces
// a size limit while counting bytes read.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Input is a normalized upload ready for parsing.
type Input struct {
	Text string
	Size int64 // bytes read from the source, BOM included
}

// ReadInput reads r fully, rejecting sources larger than maxSize bytes.
// A maxSize of zero or less disables the limit.
func ReadInput(r io.Reader, maxSize int64) (Input, error) {
	cr := &countingReader{r: r}
	var src io.Reader = cr
	if maxSize > 0 {
		src = io.LimitReader(cr, maxSize+1)
	}

	br := bufio.NewReader(src)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	data, err := io.ReadAll(br)
	if err != nil {
		return Input{}, fmt.Errorf("read upload: %w", err)
	}
	if maxSize > 0 && cr.n > maxSize {
		return Input{}, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, maxSize)
	}

	return Input{Text: NormalizeText(string(data)), Size: cr.n}, nil
}

// NormalizeText strips a leading BOM and replaces invalid UTF-8 with '?'.
func NormalizeText(s string) string {
	s = strings.TrimPrefix(s, string(utf8BOM))
	return strings.ToValidUTF8(s, "?")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
