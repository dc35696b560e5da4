// Package export serializes catalog records into the supported output
// formats. Generators are pure; publishing to a blob sink lives in publish.go.
package export

import "strings"

// QuoteField quotes v only when it contains a separator, quote or line
// break. Internal quotes are doubled.
func QuoteField(v string) string {
	if !strings.ContainsAny(v, ",\"\n\r") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// table accumulates CSV rows terminated by \n.
type table struct {
	b strings.Builder
}

func newTable(header ...string) *table {
	t := &table{}
	t.row(header...)
	return t
}

func (t *table) row(fields ...string) {
	for i, f := range fields {
		if i > 0 {
			t.b.WriteByte(',')
		}
		t.b.WriteString(QuoteField(f))
	}
	t.b.WriteByte('\n')
}

func (t *table) String() string {
	return t.b.String()
}
