package core

// parser.go turns raw CSV text into header-keyed rows.
//
// The parser is tolerant by contract: it never returns an error. Lines may end
// in \r\n, \n or \r. A field that starts with a quote may span lines; a quote
// inside an unquoted field is literal. When a multi-line quoted field never
// closes cleanly, its first line is re-read alone with end of line acting as
// an implicit close. Blank lines outside quotes are ignored.

import (
	"iter"
	"strings"
)

// Table is the parsed form of a CSV document.
type Table struct {
	Header []string
	Rows   []RawRow
}

// Parse returns every data row of text keyed by header name.
func Parse(text string) []RawRow {
	return ParseTable(text).Rows
}

// ParseTable returns the header and every data row of text.
func ParseTable(text string) Table {
	var t Table
	t.Header = Header(text)
	for _, row := range Rows(text) {
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Header returns the trimmed header fields of text, or nil when text has no
// non-blank line.
func Header(text string) []string {
	for rec := range records(text) {
		return headerFields(rec)
	}
	return nil
}

// Rows yields each data row with its zero-based index. The sequence is a pure
// function of text and may be iterated any number of times.
func Rows(text string) iter.Seq2[int, RawRow] {
	return func(yield func(int, RawRow) bool) {
		var header []string
		i := 0
		for rec := range records(text) {
			if header == nil {
				header = headerFields(rec)
				continue
			}
			if !yield(i, buildRow(header, rec)) {
				return
			}
			i++
		}
	}
}

func headerFields(fields []string) []string {
	for i, f := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(f), `"`)
	}
	return fields
}

func buildRow(header, fields []string) RawRow {
	row := make(RawRow, len(header))
	for i, name := range header {
		if i < len(fields) {
			row[name] = fields[i]
		} else {
			row[name] = ""
		}
	}
	return row
}

// splitFields tokenizes a single physical line. An unterminated quoted field
// runs to the end of the line.
func splitFields(line string) []string {
	fields, _, _ := scanRecord(line, 0)
	return fields
}

// records yields the fields of each logical CSV record. A record that is
// malformed across lines is re-read as its first physical line alone, and
// scanning resumes on the next line.
func records(text string) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		pos := 0
		for pos < len(text) {
			line, next := lineAt(text, pos)
			if isBlank(line) {
				pos = next
				continue
			}
			fields, end, ok := scanRecord(text, pos)
			if !ok {
				fields, end = splitFields(line), next
			}
			if !yield(fields) {
				return
			}
			pos = end
		}
	}
}

// scanRecord reads one record starting at pos and returns its fields and the
// offset just past its terminator.
//
// A quote opens quoted mode only as the first character of a field; anywhere
// else it is literal. Inside quoted mode a doubled quote is a literal quote,
// a single quote closes, and line breaks belong to the field. ok is false when
// input ends inside quotes, or when a quote that closes a field spanning lines
// is followed by anything but a comma or end of line.
func scanRecord(text string, pos int) (fields []string, next int, ok bool) {
	var (
		field   strings.Builder
		atStart = true
		quoted  bool
		spanned bool
	)

	i := pos
	for i < len(text) {
		c := text[i]
		if quoted {
			switch {
			case c == '"' && i+1 < len(text) && text[i+1] == '"':
				field.WriteByte('"')
				i += 2
			case c == '"':
				quoted = false
				i++
				if spanned && i < len(text) && !isDelimiter(text[i]) {
					return nil, 0, false
				}
			default:
				if c == '\r' || c == '\n' {
					spanned = true
				}
				field.WriteByte(c)
				i++
			}
			continue
		}

		switch c {
		case '"':
			if atStart {
				quoted, atStart = true, false
				i++
				continue
			}
			field.WriteByte(c)
		case ',':
			fields = append(fields, field.String())
			field.Reset()
			atStart = true
			i++
			continue
		case '\r', '\n':
			_, end := lineAt(text, i)
			return append(fields, field.String()), end, true
		default:
			field.WriteByte(c)
		}
		atStart = false
		i++
	}

	return append(fields, field.String()), i, !quoted
}

func isDelimiter(c byte) bool {
	return c == ',' || c == '\r' || c == '\n'
}

// lineAt returns the physical line starting at pos without its terminator,
// and the offset of the following line.
func lineAt(text string, pos int) (string, int) {
	for i := pos; i < len(text); i++ {
		switch text[i] {
		case '\n':
			return text[pos:i], i + 1
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				return text[pos:i], i + 2
			}
			return text[pos:i], i + 1
		}
	}
	return text[pos:], len(text)
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
