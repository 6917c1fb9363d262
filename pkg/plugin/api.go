package plugin

import "github.com/danpilch/callprof/pkg/version"

// Interface001 is revision 1 of the API offered to other plugins.
type Interface001 interface {
	// GetBuildNumber returns a build identifier that grows with every release.
	GetBuildNumber() uint32

	StartProfilingConfig(name string) error
	StopProfiling() error

	// LoadSettings rereads the settings file.
	LoadSettings() error
}

type interface001 struct {
	p *Plugin
}

func (a *interface001) GetBuildNumber() uint32 {
	return version.BuildNumber()
}

func (a *interface001) StartProfilingConfig(name string) error {
	return a.p.hook.RunConfig(name)
}

func (a *interface001) StopProfiling() error {
	return a.p.hook.StopCurrentConfig()
}

func (a *interface001) LoadSettings() error {
	return a.p.loadSettings()
}
