package output

import (
	"fmt"
	"sync"

	"github.com/danpilch/callprof/pkg/record"
	"github.com/sirupsen/logrus"
)

// AtEnd keeps records in memory and writes them in one pass on Close.
type AtEnd struct {
	opts Options

	mu      sync.Mutex
	header  record.Header
	records []record.Record
	path    string
	closed  bool
	err     error
}

// NewAtEnd creates a batching sink.
func NewAtEnd(opts Options) *AtEnd {
	return &AtEnd{opts: opts.withDefaults()}
}

func (a *AtEnd) Begin(h record.Header) {
	a.mu.Lock()
	a.header = h
	a.mu.Unlock()
}

func (a *AtEnd) Write(rec record.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%w: sink closed", ErrWriteIO)
	}
	a.records = append(a.records, rec)
	return nil
}

// Close writes every buffered record in capture order. Nothing is created
// when no record was captured.
func (a *AtEnd) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return a.err
	}
	a.closed = true

	if len(a.records) == 0 {
		return nil
	}
	a.err = a.flush()
	a.records = nil
	return a.err
}

func (a *AtEnd) flush() error {
	f, path, err := create(a.opts.FS, a.opts.Base, a.opts.MaxSuffix)
	if err != nil {
		return err
	}
	a.path = path

	enc := record.NewEncoder(f)
	err = enc.WriteHeader(a.header)
	for i := 0; err == nil && i < len(a.records); i++ {
		err = enc.Write(a.records[i])
	}
	if err == nil {
		err = enc.Flush()
	}
	if err == nil {
		err = syncData(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteIO, path, err)
	}

	a.opts.Logger.WithFields(logrus.Fields{
		"path":    path,
		"records": len(a.records),
	}).Info("Wrote profiling output")
	return nil
}

func (a *AtEnd) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

func (a *AtEnd) Dropped() uint64 { return 0 }
