// Package output persists captured call records without overwriting the
// outputs of earlier runs.
package output

import (
	"errors"

	"github.com/danpilch/callprof/pkg/profconfig"
	"github.com/danpilch/callprof/pkg/record"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrWriteIO wraps any I/O failure while writing output.
var ErrWriteIO = errors.New("output write failed")

// DefaultQueueSize is the live writer's queue length when none is given.
const DefaultQueueSize = 4096

// Sink receives records of one session.
//
// Begin and Write are called from the host's dispatch path and never block
// on disk I/O. Close flushes what was accepted; it is safe to call twice.
type Sink interface {
	// Begin supplies the header once the session's clock has started.
	Begin(h record.Header)

	// Write hands over one record. A non-nil error means the sink has
	// failed and will not accept more records.
	Write(rec record.Record) error

	Close() error

	// Path returns the file written to, empty until one is created.
	Path() string

	// Dropped counts records lost to a full queue.
	Dropped() uint64
}

// Options configures the sink returned by Open.
type Options struct {
	FS        afero.Fs
	Base      string // output path without suffix and extension
	MaxSuffix uint32
	QueueSize int
	Logger    *logrus.Logger
}

// DefaultOptions returns options writing to the OS filesystem.
func DefaultOptions(base string) Options {
	return Options{
		FS:        afero.NewOsFs(),
		Base:      base,
		QueueSize: DefaultQueueSize,
	}
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetLevel(logrus.WarnLevel)
	}
	return o
}

// Open returns the sink for a write mode. Invalid modes get a Discard sink;
// configs carrying them never load successfully.
func Open(mode profconfig.WriteMode, opts Options) Sink {
	opts = opts.withDefaults()
	switch mode {
	case profconfig.WriteAtEnd:
		return NewAtEnd(opts)
	case profconfig.WriteLive:
		return NewLive(opts)
	default:
		return Discard{}
	}
}

// Discard is the NoWrite sink.
type Discard struct{}

func (Discard) Begin(record.Header)       {}
func (Discard) Write(record.Record) error { return nil }
func (Discard) Close() error              { return nil }
func (Discard) Path() string              { return "" }
func (Discard) Dropped() uint64           { return 0 }
