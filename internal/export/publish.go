package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/testcatalog/internal/blob"
	"github.com/JonMunkholm/testcatalog/internal/core"
)

// Publisher writes generated exports to a blob sink.
type Publisher struct {
	sink  blob.Sink
	now   func() time.Time
	newID func() string
}

// NewPublisher returns a Publisher writing to sink.
func NewPublisher(sink blob.Sink) *Publisher {
	return &Publisher{
		sink:  sink,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Published describes a stored export artifact.
type Published struct {
	Format string    `json:"format"`
	Count  int       `json:"count"`
	Object blob.Info `json:"object"`
}

// Key returns the object key for an export: exports/<format>/<timestamp>-<id>.<ext>.
func Key(format string, at time.Time, id, ext string) string {
	return fmt.Sprintf("exports/%s/%s-%s.%s", format, at.UTC().Format("20060102T150405Z"), id, ext)
}

// Publish generates the named format and stores it.
func (p *Publisher) Publish(ctx context.Context, format string, records []core.TestRecord, opts Options) (Published, error) {
	out, err := Generate(format, records, opts)
	if err != nil {
		return Published{}, err
	}

	key := Key(out.Format, p.now(), p.newID(), out.Ext)
	info, err := p.sink.Put(ctx, key, bytes.NewReader(out.Body), blob.PutOptions{
		ContentType: out.ContentType,
		Metadata: map[string]string{
			"format":  out.Format,
			"records": strconv.Itoa(out.Count),
		},
	})
	if err != nil {
		return Published{}, fmt.Errorf("publish export %s: %w", key, err)
	}
	return Published{Format: out.Format, Count: out.Count, Object: info}, nil
}

// List returns published exports, optionally for a single format.
func (p *Publisher) List(ctx context.Context, format string) ([]blob.Info, error) {
	prefix := "exports/"
	if format != "" {
		prefix += format + "/"
	}
	return p.sink.List(ctx, prefix)
}

// Driver names the sink the publisher writes to.
func (p *Publisher) Driver() blob.Driver {
	return p.sink.Driver()
}
