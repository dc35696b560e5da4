package fhir

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// NDJSONWriter writes one JSON resource per line, the bulk data format.
type NDJSONWriter struct {
	w *bufio.Writer
	n int
}

// NewNDJSONWriter creates a writer that buffers output to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: bufio.NewWriter(w)}
}

// WriteResource serializes resource followed by a newline.
func (n *NDJSONWriter) WriteResource(resource any) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return err
	}
	n.n++
	return nil
}

// Count returns the number of resources written.
func (n *NDJSONWriter) Count() int {
	return n.n
}

// Flush flushes buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}

// WriteNDJSON writes the resources for records to w and flushes.
func WriteNDJSON(w io.Writer, records []core.TestRecord, dual bool) (int, error) {
	nw := NewNDJSONWriter(w)
	for _, res := range Resources(records, dual) {
		if err := nw.WriteResource(res); err != nil {
			return nw.Count(), err
		}
	}
	return nw.Count(), nw.Flush()
}
