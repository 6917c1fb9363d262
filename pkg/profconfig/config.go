// Package profconfig loads and validates profiling configurations.
package profconfig

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/grafana/regexp"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
)

// ErrConfigParse marks a configuration that could not be decoded or whose
// filters failed to compile.
var ErrConfigParse = errors.New("cannot parse profiling config")

// Extension is appended to a config name to find its source document.
const Extension = ".json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is one profiling run's tunables. It is not mutated after Load or
// Parse returns, so sessions and filters may share its compiled patterns.
type Config struct {
	// Name is the identifier the config was loaded by.
	Name string

	// IncludeFilters, if not empty, must match a stack signature at least once
	// for the call to be recorded.
	IncludeFilters []*regexp.Regexp

	// ExcludeFilters reject any stack signature they match.
	ExcludeFilters []*regexp.Regexp

	// OutFilename is the output root without suffix or extension.
	OutFilename string

	// MaxFilepathSuffix bounds the numeric suffix probed to avoid
	// overwriting earlier outputs. Probing starts at 0.
	MaxFilepathSuffix uint32

	MaxNumCalls    uint32 // 0 = no limit
	MaxNumSeconds  uint32 // 0 = no limit
	NumSkipCalls   uint32
	NumSkipSeconds uint32

	// ShowDebugMessageBox shows a prompt when the run starts and stops.
	ShowDebugMessageBox bool

	WriteMode WriteMode

	// FailedLoad is set when the source could not be read or parsed. A
	// failed config must never be run.
	FailedLoad bool

	// Err holds the reason for FailedLoad.
	Err error
}

// Default returns the config used for absent keys.
func Default(name string) Config {
	return Config{
		Name:                name,
		OutFilename:         name,
		ShowDebugMessageBox: true,
		WriteMode:           WriteAtEnd,
	}
}

// MaxDuration returns the recording time limit, 0 meaning unbounded.
func (c Config) MaxDuration() time.Duration {
	return time.Duration(c.MaxNumSeconds) * time.Second
}

// SkipDuration returns how long the skip phase lasts at minimum.
func (c Config) SkipDuration() time.Duration {
	return time.Duration(c.NumSkipSeconds) * time.Second
}

// document mirrors the on-disk keys. Fields left nil keep their defaults.
type document struct {
	IncludeFilters      []string   `json:"includeFilters"`
	ExcludeFilters      []string   `json:"excludeFilters"`
	OutFilename         *string    `json:"outFilename"`
	MaxFilepathSuffix   *uint32    `json:"maxFilepathSuffix"`
	MaxNumCalls         *uint32    `json:"maxNumCalls"`
	MaxNumSeconds       *uint32    `json:"maxNumSeconds"`
	NumSkipCalls        *uint32    `json:"numSkipCalls"`
	NumSkipSeconds      *uint32    `json:"numSkipSeconds"`
	ShowDebugMessageBox *bool      `json:"showDebugMessageBox"`
	WriteMode           *WriteMode `json:"writeMode"`
}

// Parse builds a Config from a JSON document. Unknown keys are ignored. On
// any failure the returned config keeps its defaults and has FailedLoad set.
func Parse(name string, data []byte) Config {
	cfg := Default(name)

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return failed(cfg, fmt.Errorf("%w %q: %v", ErrConfigParse, name, err))
	}

	include, err := compileAll(doc.IncludeFilters)
	if err != nil {
		return failed(cfg, fmt.Errorf("%w %q: include filter: %v", ErrConfigParse, name, err))
	}
	exclude, err := compileAll(doc.ExcludeFilters)
	if err != nil {
		return failed(cfg, fmt.Errorf("%w %q: exclude filter: %v", ErrConfigParse, name, err))
	}
	if doc.WriteMode != nil && !doc.WriteMode.Valid() {
		return failed(cfg, fmt.Errorf("%w %q: invalid write mode %d", ErrConfigParse, name, uint32(*doc.WriteMode)))
	}

	cfg.IncludeFilters = include
	cfg.ExcludeFilters = exclude
	if doc.OutFilename != nil && *doc.OutFilename != "" {
		cfg.OutFilename = *doc.OutFilename
	}
	setUint(&cfg.MaxFilepathSuffix, doc.MaxFilepathSuffix)
	setUint(&cfg.MaxNumCalls, doc.MaxNumCalls)
	setUint(&cfg.MaxNumSeconds, doc.MaxNumSeconds)
	setUint(&cfg.NumSkipCalls, doc.NumSkipCalls)
	setUint(&cfg.NumSkipSeconds, doc.NumSkipSeconds)
	if doc.ShowDebugMessageBox != nil {
		cfg.ShowDebugMessageBox = *doc.ShowDebugMessageBox
	}
	if doc.WriteMode != nil {
		cfg.WriteMode = *doc.WriteMode
	}
	return cfg
}

func setUint(dst *uint32, v *uint32) {
	if v != nil {
		*dst = *v
	}
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func failed(cfg Config, err error) Config {
	cfg.FailedLoad = true
	cfg.Err = err
	return cfg
}

// Loader reads configs named by their base name from a directory.
type Loader struct {
	FS  afero.Fs
	Dir string
}

// NewLoader creates a loader over the OS filesystem.
func NewLoader(dir string) *Loader {
	return &Loader{FS: afero.NewOsFs(), Dir: dir}
}

// Path returns the source document path for a config name.
func (l *Loader) Path(name string) string {
	return filepath.Join(l.Dir, name+Extension)
}

// Load reads and parses the named config. It never returns an error; a
// failure is reported through FailedLoad and Err.
func (l *Loader) Load(name string) Config {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return failed(Default(name), fmt.Errorf("%w: invalid config name %q", ErrConfigParse, name))
	}

	data, err := afero.ReadFile(l.FS, l.Path(name))
	if err != nil {
		return failed(Default(name), fmt.Errorf("%w: cannot read %q: %v", ErrConfigParse, l.Path(name), err))
	}
	return Parse(name, data)
}
