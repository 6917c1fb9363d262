// Package plugin is the profiler's surface towards the host: lifecycle
// messages, the startup config and the versioned API other plugins use.
package plugin

import (
	"path/filepath"

	"github.com/danpilch/callprof/pkg/hook"
	"github.com/danpilch/callprof/pkg/profconfig"
	"github.com/danpilch/callprof/pkg/session"
	"github.com/danpilch/callprof/pkg/settings"
	"github.com/danpilch/callprof/pkg/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
)

// Name identifies the plugin to other plugins.
const Name = "callprof"

// Message is a host lifecycle notification.
type Message int

const (
	MessagePostLoad    Message = iota // all plugins loaded
	MessageNewGame                    // a new host session starts
	MessagePreLoadGame                // a saved host session is about to load
)

func (m Message) String() string {
	switch m {
	case MessagePostLoad:
		return "post-load"
	case MessageNewGame:
		return "new-game"
	case MessagePreLoadGame:
		return "pre-load-game"
	default:
		return "unknown"
	}
}

// Options configures a Plugin.
type Options struct {
	FS             afero.Fs
	SettingsPath   string
	Logger         *logrus.Logger
	Prompter       hook.Prompter
	Clock          session.Clock
	OnSessionClose func(session.Stats)
}

// Plugin wires the settings, the hook and the public API together.
type Plugin struct {
	fs       afero.Fs
	logger   *logrus.Logger
	settings *settings.Store
	hook     *hook.Hook
	api      *interface001

	listening atomic.Bool
}

// New loads the settings and prepares the hook. Broken settings are
// reported and replaced by defaults; they never prevent loading.
func New(opts Options) *Plugin {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	p := &Plugin{fs: opts.FS, logger: opts.Logger}
	p.settings = settings.NewStore(opts.FS, opts.SettingsPath, opts.Logger)
	p.loadSettings()

	p.hook = hook.New(hook.Options{
		Loader:         settingsLoader{p},
		FS:             opts.FS,
		QueueSize:      func() int { return p.settings.Get().LiveQueueSize },
		Clock:          opts.Clock,
		Prompter:       opts.Prompter,
		Logger:         opts.Logger,
		OnSessionClose: opts.OnSessionClose,
	})
	p.api = &interface001{p: p}

	p.logger.WithFields(logrus.Fields{
		"plugin":  Name,
		"version": version.String(),
	}).Info("Plugin loaded")
	return p
}

// Hook returns the plugin's hook.
func (p *Plugin) Hook() *hook.Hook { return p.hook }

// Settings returns the plugin's settings store.
func (p *Plugin) Settings() *settings.Store { return p.settings }

// LoadConfig resolves a config the way RunConfig would, without running it.
func (p *Plugin) LoadConfig(name string) profconfig.Config {
	return settingsLoader{p}.Load(name)
}

// Install attaches the profiler to the host's call dispatch.
func (p *Plugin) Install(d hook.Dispatcher) error {
	p.logger.Trace("Initializing hooks...")
	if err := p.hook.Install(d); err != nil {
		return err
	}
	p.logger.Trace("Hooks initialized.")
	return nil
}

func (p *Plugin) loadSettings() error {
	err := p.settings.Load()
	if err != nil {
		p.logger.WithField("error", err).Error("Failed to load settings, default settings will be used")
	}
	p.logger.SetLevel(p.settings.Get().Level())
	return err
}

// HandleMessage reacts to host lifecycle messages. A new or loaded host
// session stops whatever is being profiled and starts the startup config.
func (p *Plugin) HandleMessage(msg Message) {
	switch msg {
	case MessagePostLoad:
		p.listening.Store(true)
		p.logger.WithFields(logrus.Fields{
			"plugin":       Name,
			"build_number": version.BuildNumber(),
		}).Info("Listening for interface requests")
	case MessageNewGame, MessagePreLoadGame:
		if err := p.hook.StopCurrentConfig(); err != nil {
			p.logger.WithField("error", err).Warn("Previous profiling session ended with an error")
		}
		startup := p.settings.Get().StartupConfig
		if startup == "" {
			p.logger.Info("Not starting any profiling config, startup setting is empty.")
			return
		}
		p.logger.WithField("config", startup).Info("Starting profiling config from settings")
		if err := p.hook.RunConfig(startup); err != nil {
			p.logger.WithField("error", err).Error("Failed to start startup profiling config")
		}
	}
}

// RequestInterface answers another plugin asking for the API. It returns
// the lookup function, or nil before the plugin is ready to serve it.
func (p *Plugin) RequestInterface(sender string) func(revision uint32) any {
	if !p.listening.Load() {
		return nil
	}
	p.logger.WithField("sender", sender).Info("Provided plugin interface")
	return p.GetAPI
}

// GetAPI returns the API of the requested revision, or nil if unknown.
func (p *Plugin) GetAPI(revision uint32) any {
	switch revision {
	case 1:
		p.logger.Info("Interface revision 1 requested")
		return Interface001(p.api)
	}
	p.logger.WithField("revision", revision).Warn("Unknown interface revision requested")
	return nil
}

// settingsLoader resolves configs and outputs against the current settings
// so LoadSettings takes effect on the next run.
type settingsLoader struct {
	p *Plugin
}

func (l settingsLoader) Load(name string) profconfig.Config {
	s := l.p.settings.Get()
	cfg := (&profconfig.Loader{FS: l.p.fs, Dir: s.ConfigDir}).Load(name)
	if !filepath.IsAbs(cfg.OutFilename) && s.OutputDir != "" {
		cfg.OutFilename = filepath.Join(s.OutputDir, cfg.OutFilename)
	}
	return cfg
}
