// Package session implements one bounded profiling run.
//
// A session moves through Created, Skipping, Recording, Finalizing and
// Closed. The first call starts the clock. Calls are skipped until both
// skip gates are satisfied, then filtered and forwarded to the output sink
// until a call or time limit is reached or the session is stopped. Either
// way the same finalization flushes and closes the sink.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danpilch/callprof/pkg/filter"
	"github.com/danpilch/callprof/pkg/output"
	"github.com/danpilch/callprof/pkg/profconfig"
	"github.com/danpilch/callprof/pkg/record"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ErrFailedConfig is returned by New for configs that did not load.
var ErrFailedConfig = errors.New("config failed to load")

// Clock returns the current time.
type Clock func() time.Time

// Call is one intercepted call as seen at the host's dispatch boundary.
type Call struct {
	Stack   []string // innermost frame first
	Payload []byte
}

// Options wires a session to its collaborators.
type Options struct {
	Sink   output.Sink
	Clock  Clock
	Logger *logrus.Logger

	// OnClose runs once after the session reached Closed. It must not call
	// Stop.
	OnClose func(Stats)
}

// Session is safe for concurrent use by any number of dispatch threads.
type Session struct {
	cfg     profconfig.Config
	sink    output.Sink
	clock   Clock
	logger  *logrus.Logger
	onClose func(Stats)

	mu          sync.Mutex
	start    time.Time
	lastCall time.Time
	seq      uint64
	cause    error
	err      error

	state    atomic.Int32
	seen     atomic.Uint64
	skipped  atomic.Uint64
	recorded atomic.Uint64
	rejected atomic.Uint64

	once sync.Once
	done chan struct{}
}

// New creates a session for cfg. The session owns cfg from here on.
func New(cfg profconfig.Config, opts Options) (*Session, error) {
	if cfg.FailedLoad {
		return nil, fmt.Errorf("%w: %q: %v", ErrFailedConfig, cfg.Name, cfg.Err)
	}
	if opts.Sink == nil {
		opts.Sink = output.Discard{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.WarnLevel)
	}
	return &Session{
		cfg:     cfg,
		sink:    opts.Sink,
		clock:   opts.Clock,
		logger:  opts.Logger,
		onClose: opts.OnClose,
		done:    make(chan struct{}),
	}, nil
}

// Config returns the config the session runs.
func (s *Session) Config() profconfig.Config { return s.cfg }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session is Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Handle processes one intercepted call. It never blocks on disk I/O; when
// a limit is reached finalization continues on another goroutine.
func (s *Session) Handle(c Call) {
	if s.State() >= Finalizing {
		return
	}
	s.seen.Inc()

	// Filtering is pure, so it runs outside the lock whenever possible.
	var accepted, evaluated bool
	if s.State() == Recording {
		accepted, evaluated = s.accept(c.Stack), true
	}

	if s.handleLocked(c, s.clock(), accepted, evaluated) {
		go s.finalize()
	}
}

// handleLocked advances the state machine for one call and reports whether
// the session has to be finalized.
func (s *Session) handleLocked(c Call, now time.Time, accepted, evaluated bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.State()
	if st >= Finalizing {
		return false
	}
	s.lastCall = now

	switch st {
	case Created:
		s.start = now
		s.sink.Begin(record.NewHeader(s.cfg.Name, now))
		s.setState(Skipping)
		fallthrough
	case Skipping:
		if !s.skipDone(now) {
			s.skipped.Inc()
			return false
		}
		s.setState(Recording)
	}

	if !evaluated {
		accepted = s.accept(c.Stack)
	}
	if accepted {
		s.seq++
		err := s.sink.Write(record.Record{
			Seq:     s.seq,
			Offset:  now.Sub(s.start),
			Stack:   c.Stack,
			Payload: c.Payload,
		})
		if err != nil {
			s.cause = err
			s.setState(Finalizing)
			return true
		}
		s.recorded.Inc()
	} else {
		s.rejected.Inc()
	}
	if s.limitReached(now) {
		s.setState(Finalizing)
		return true
	}
	return false
}

// skipDone reports whether the skip phase is over. Both the call gate and
// the time gate have to be satisfied.
func (s *Session) skipDone(now time.Time) bool {
	return s.skipped.Load() >= uint64(s.cfg.NumSkipCalls) &&
		now.Sub(s.start) >= s.cfg.SkipDuration()
}

// limitReached reports whether either recording limit has been hit. The
// time limit shares the session clock with the skip phase, so it counts
// from the first call.
func (s *Session) limitReached(now time.Time) bool {
	if s.cfg.MaxNumCalls != 0 && s.recorded.Load() >= uint64(s.cfg.MaxNumCalls) {
		return true
	}
	if d := s.cfg.MaxDuration(); d != 0 && now.Sub(s.start) >= d {
		return true
	}
	return false
}

func (s *Session) accept(stack []string) bool {
	return filter.Accept(s.cfg.IncludeFilters, s.cfg.ExcludeFilters, filter.Signature(stack))
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Stop finalizes the session and waits until it is Closed. Whatever was
// captured so far is kept. Stopping a closed session is a no-op that
// returns the original result.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.State() < Finalizing {
		s.setState(Finalizing)
	}
	s.mu.Unlock()

	s.finalize()
	return s.Err()
}

// finalize is shared by limit, failure and external stop paths. Concurrent
// callers wait for the first one to finish.
func (s *Session) finalize() {
	s.once.Do(func() {
		err := s.sink.Close()

		s.mu.Lock()
		if err == nil {
			err = s.cause
		}
		s.err = err
		s.setState(Closed)
		s.mu.Unlock()

		stats := s.Stats()
		entry := s.logger.WithFields(logrus.Fields{
			"config":   s.cfg.Name,
			"recorded": stats.Recorded,
			"skipped":  stats.Skipped,
			"rejected": stats.Rejected,
			"dropped":  stats.Dropped,
			"path":     stats.Path,
		})
		if err != nil {
			entry.WithField("error", err).Error("Profiling session ended with an error")
		} else {
			entry.Info("Profiling session closed")
		}

		close(s.done)
		if s.onClose != nil {
			s.onClose(stats)
		}
	})
}

// Err returns the finalization result, nil while the session is running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Config:   s.cfg.Name,
		Mode:     s.cfg.WriteMode,
		State:    s.State(),
		Seen:     s.seen.Load(),
		Skipped:  s.skipped.Load(),
		Recorded: s.recorded.Load(),
		Rejected: s.rejected.Load(),
		Dropped:  s.sink.Dropped(),
		Path:     s.sink.Path(),
		Err:      s.err,
	}
	if !s.start.IsZero() {
		st.Elapsed = s.lastCall.Sub(s.start)
	}
	return st
}
