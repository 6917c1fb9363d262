// Package record defines captured calls and their on-disk encoding.
//
// An output file is JSON Lines: one Header line followed by one Record per
// line in capture order.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Format identifies callprof output files.
const (
	Format  = "callprof"
	Version = 1
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one call that passed filtering.
type Record struct {
	Seq    uint64        `json:"seq"`
	Offset time.Duration `json:"offset_ns"` // since the session's first call
	Stack  []string      `json:"stack"`     // innermost frame first

	// Payload is whatever the host exposed at the call boundary. It is
	// carried through without interpretation.
	Payload []byte `json:"payload,omitempty"`
}

// Header opens every output file.
type Header struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Config  string    `json:"config"`
	Start   time.Time `json:"start"`
}

// NewHeader returns the header for a session of the given config.
func NewHeader(config string, start time.Time) Header {
	return Header{Format: Format, Version: Version, Config: config, Start: start.UTC()}
}

// Encoder writes a header and records to a buffered stream.
type Encoder struct {
	bw  *bufio.Writer
	enc *jsoniter.Encoder
}

// NewEncoder creates an encoder writing to w. Nothing reaches w before
// Flush or a full buffer.
func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	return &Encoder{bw: bw, enc: json.NewEncoder(bw)}
}

// WriteHeader writes the header line.
func (e *Encoder) WriteHeader(h Header) error {
	return e.enc.Encode(h)
}

// Write appends a record line.
func (e *Encoder) Write(r Record) error {
	return e.enc.Encode(r)
}

// Flush pushes buffered lines to the underlying writer.
func (e *Encoder) Flush() error {
	return e.bw.Flush()
}

// maxLine bounds a single decoded line.
const maxLine = 16 << 20

// ReadAll decodes a complete output stream.
func ReadAll(r io.Reader) (Header, []Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		h       Header
		records []Record
		sawHead bool
	)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if !sawHead {
			if err := json.Unmarshal(line, &h); err != nil {
				return h, nil, fmt.Errorf("cannot read header: %w", err)
			}
			if h.Format != Format {
				return h, nil, fmt.Errorf("unexpected format %q", h.Format)
			}
			sawHead = true
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return h, records, fmt.Errorf("cannot read record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return h, records, err
	}
	if !sawHead {
		return h, nil, errors.New("missing header")
	}
	return h, records, nil
}
