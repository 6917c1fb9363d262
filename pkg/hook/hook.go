// Package hook attaches the profiler to a host VM's call dispatch and owns
// the active recording session.
package hook

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/danpilch/callprof/pkg/output"
	"github.com/danpilch/callprof/pkg/profconfig"
	"github.com/danpilch/callprof/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
)

var (
	// ErrConfigLoadFailed is returned by RunConfig when the named config
	// could not be loaded. The running session is left untouched.
	ErrConfigLoadFailed = errors.New("profiling config failed to load")

	// ErrCaptureFailure describes a call whose stack could not be read.
	// It is counted and logged, never returned to the host.
	ErrCaptureFailure = errors.New("cannot capture call stack")

	ErrAlreadyInstalled = errors.New("hook already installed")
)

// CallContext is what the host exposes about a call it is about to
// dispatch.
type CallContext interface {
	// Stack returns the frames leading to the call, innermost first.
	Stack() ([]string, error)

	// Payload returns opaque call data, or nil.
	Payload() []byte
}

// Dispatcher is the host VM's call-dispatch path.
type Dispatcher interface {
	SetDispatchHook(fn func(CallContext))
}

// ConfigLoader resolves a config name.
type ConfigLoader interface {
	Load(name string) profconfig.Config
}

// Prompter shows a message to the user.
type Prompter interface {
	Show(msg string)
}

// Options configures a Hook.
type Options struct {
	Loader    ConfigLoader
	FS        afero.Fs
	OutputDir string // relative output names resolve against this
	Clock     session.Clock
	Prompter  Prompter
	Logger    *logrus.Logger

	// QueueSize returns the live queue length for the next session. It is
	// asked on every RunConfig so changed settings apply to the next run.
	QueueSize func() int

	// OnSessionClose observes every session once it is Closed.
	OnSessionClose func(session.Stats)
}

// Hook routes intercepted calls into the current session.
//
// The current session is held in an atomic pointer so the dispatch path
// never takes a lock to find it. RunConfig and StopCurrentConfig are
// serialized against each other.
type Hook struct {
	opts   Options
	logger *logrus.Logger

	ctrl      sync.Mutex
	current   atomic.Pointer[session.Session]
	installed atomic.Bool

	captureFailures atomic.Uint64
}

// New creates a hook. It does nothing until installed and given a config.
func New(opts Options) *Hook {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.WarnLevel)
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Loader == nil {
		opts.Loader = &profconfig.Loader{FS: opts.FS, Dir: "."}
	}
	return &Hook{opts: opts, logger: opts.Logger}
}

// Install attaches the hook to the host's dispatch path. It can only be
// done once per hook.
func (h *Hook) Install(d Dispatcher) error {
	if !h.installed.CompareAndSwap(false, true) {
		return ErrAlreadyInstalled
	}
	d.SetDispatchHook(h.Intercept)
	h.logger.Debug("Call dispatch hook installed")
	return nil
}

// RunConfig loads the named config and makes it the active session. A
// running session is finalized first. A config that fails to load is
// rejected and the running session keeps going.
func (h *Hook) RunConfig(name string) error {
	cfg := h.opts.Loader.Load(name)
	if cfg.FailedLoad {
		h.logger.WithFields(logrus.Fields{
			"config": name,
			"error":  cfg.Err,
		}).Error("Not running profiling config that failed to load")
		return fmt.Errorf("%w: %v", ErrConfigLoadFailed, cfg.Err)
	}

	h.ctrl.Lock()
	defer h.ctrl.Unlock()

	h.stopLocked()

	base := h.outputBase(cfg)
	queueSize := h.queueSize()
	if cfg.WriteMode != profconfig.NoWrite {
		// Without a record nothing is written, so an exhausted suffix range
		// would otherwise go unnoticed.
		if _, err := output.ResolvePath(h.opts.FS, base, cfg.MaxFilepathSuffix); errors.Is(err, output.ErrFilepathExhausted) {
			h.logger.WithFields(logrus.Fields{
				"config": cfg.Name,
				"error":  err,
			}).Warn("Every output path is taken, recorded calls will not be written")
		}
	}

	sink := output.Open(cfg.WriteMode, output.Options{
		FS:        h.opts.FS,
		Base:      base,
		MaxSuffix: cfg.MaxFilepathSuffix,
		QueueSize: queueSize,
		Logger:    h.logger,
	})

	var sess *session.Session
	sess, err := session.New(cfg, session.Options{
		Sink:   sink,
		Clock:  h.opts.Clock,
		Logger: h.logger,
		OnClose: func(st session.Stats) {
			h.current.CompareAndSwap(sess, nil)
			h.closed(cfg, st)
		},
	})
	if err != nil {
		_ = sink.Close()
		return err
	}
	h.current.Store(sess)

	h.logger.WithFields(logrus.Fields{
		"config":     cfg.Name,
		"write_mode": cfg.WriteMode,
		"queue_size": queueSize,
	}).Info("Started profiling config")
	if cfg.ShowDebugMessageBox && h.opts.Prompter != nil {
		h.opts.Prompter.Show(fmt.Sprintf("Started profiling config %q", cfg.Name))
	}
	return nil
}

// StopCurrentConfig finalizes the active session, if any, and waits for its
// output to be flushed. It returns the session's finalization error.
func (h *Hook) StopCurrentConfig() error {
	h.ctrl.Lock()
	defer h.ctrl.Unlock()
	return h.stopLocked()
}

func (h *Hook) stopLocked() error {
	sess := h.current.Swap(nil)
	if sess == nil {
		return nil
	}
	return sess.Stop()
}

func (h *Hook) closed(cfg profconfig.Config, st session.Stats) {
	if cfg.ShowDebugMessageBox && h.opts.Prompter != nil {
		msg := fmt.Sprintf("Stopped profiling config %q: %d calls recorded", cfg.Name, st.Recorded)
		if st.Err != nil {
			msg += fmt.Sprintf(" (%v)", st.Err)
		}
		h.opts.Prompter.Show(msg)
	}
	if h.opts.OnSessionClose != nil {
		h.opts.OnSessionClose(st)
	}
}

// Intercept is called by the host for every call it is about to dispatch.
// It never panics and never changes the call.
func (h *Hook) Intercept(c CallContext) {
	sess := h.current.Load()
	if sess == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.captureFailed(fmt.Errorf("%w: %v", ErrCaptureFailure, r))
		}
	}()

	stack, err := c.Stack()
	if err != nil {
		h.captureFailed(fmt.Errorf("%w: %v", ErrCaptureFailure, err))
		return
	}
	sess.Handle(session.Call{Stack: stack, Payload: c.Payload()})
}

func (h *Hook) captureFailed(err error) {
	n := h.captureFailures.Inc()
	entry := h.logger.WithFields(logrus.Fields{"error": err, "count": n})
	if n == 1 {
		entry.Warn("Failed to capture call")
		return
	}
	entry.Debug("Failed to capture call")
}

// CaptureFailures returns how many intercepted calls could not be read.
func (h *Hook) CaptureFailures() uint64 {
	return h.captureFailures.Load()
}

// Stats returns the active session's counters.
func (h *Hook) Stats() (session.Stats, bool) {
	sess := h.current.Load()
	if sess == nil {
		return session.Stats{}, false
	}
	return sess.Stats(), true
}

func (h *Hook) queueSize() int {
	if h.opts.QueueSize == nil {
		return output.DefaultQueueSize
	}
	if n := h.opts.QueueSize(); n > 0 {
		return n
	}
	return output.DefaultQueueSize
}

func (h *Hook) outputBase(cfg profconfig.Config) string {
	if filepath.IsAbs(cfg.OutFilename) || h.opts.OutputDir == "" {
		return cfg.OutFilename
	}
	return filepath.Join(h.opts.OutputDir, cfg.OutFilename)
}
