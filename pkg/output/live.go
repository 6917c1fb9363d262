package output

import (
	"fmt"
	"sync"

	"github.com/danpilch/callprof/pkg/record"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
)

// Live appends records to disk as they arrive. Records are queued to a
// writer goroutine; when the queue is full the record is dropped and
// counted instead of blocking the caller. Bytes already written are never
// rewritten.
type Live struct {
	opts   Options
	header record.Header

	mu     sync.RWMutex // guards closing queue against senders
	queue  chan record.Record
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Bool
	path    atomic.String

	errMu sync.Mutex
	err   error
}

// NewLive creates a live sink and starts its writer goroutine.
func NewLive(opts Options) *Live {
	opts = opts.withDefaults()
	l := &Live{
		opts:  opts,
		queue: make(chan record.Record, opts.QueueSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Live) Begin(h record.Header) {
	l.header = h
}

func (l *Live) Write(rec record.Record) error {
	if l.failed.Load() {
		return l.Err()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return fmt.Errorf("%w: sink closed", ErrWriteIO)
	}
	select {
	case l.queue <- rec:
	default:
		l.dropped.Inc()
	}
	return nil
}

// Close drains the queue, then flushes and closes the file.
func (l *Live) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	<-l.done
	return l.Err()
}

// Err returns the first failure of the writer goroutine.
func (l *Live) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *Live) Path() string    { return l.path.Load() }
func (l *Live) Dropped() uint64 { return l.dropped.Load() }

func (l *Live) fail(err error) {
	l.errMu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.errMu.Unlock()
	l.failed.Store(true)
}

func (l *Live) run() {
	defer close(l.done)

	var (
		f       afero.File
		enc     *record.Encoder
		written int
	)
	for rec := range l.queue {
		if l.failed.Load() {
			l.dropped.Inc()
			continue
		}
		if f == nil {
			var (
				path string
				err  error
			)
			f, path, err = create(l.opts.FS, l.opts.Base, l.opts.MaxSuffix)
			if err != nil {
				l.fail(err)
				l.dropped.Inc()
				continue
			}
			l.path.Store(path)
			enc = record.NewEncoder(f)
			if err := enc.WriteHeader(l.header); err != nil {
				l.fail(fmt.Errorf("%w: %s: %v", ErrWriteIO, path, err))
				continue
			}
		}
		if err := enc.Write(rec); err != nil {
			l.fail(fmt.Errorf("%w: %s: %v", ErrWriteIO, l.path.Load(), err))
			continue
		}
		written++
		if len(l.queue) == 0 {
			if err := l.sync(f, enc); err != nil {
				l.fail(err)
			}
		}
	}

	if f == nil {
		return
	}
	if !l.failed.Load() {
		if err := l.sync(f, enc); err != nil {
			l.fail(err)
		}
	}
	if err := f.Close(); err != nil {
		l.fail(fmt.Errorf("%w: %s: %v", ErrWriteIO, l.path.Load(), err))
	}
	l.opts.Logger.WithFields(logrus.Fields{
		"path":    l.path.Load(),
		"records": written,
		"dropped": l.dropped.Load(),
	}).Info("Closed live profiling output")
}

func (l *Live) sync(f afero.File, enc *record.Encoder) error {
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteIO, l.path.Load(), err)
	}
	if err := syncData(f); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteIO, l.path.Load(), err)
	}
	return nil
}
