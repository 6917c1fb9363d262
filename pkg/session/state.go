package session

import (
	"time"

	"github.com/danpilch/callprof/pkg/profconfig"
)

// State is a session's lifecycle phase. States only move forward.
type State int32

const (
	Created State = iota
	Skipping
	Recording
	Finalizing
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Skipping:
		return "skipping"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of a session.
type Stats struct {
	Config   string               `json:"config"`
	Mode     profconfig.WriteMode `json:"write_mode"`
	State    State                `json:"-"`
	Seen     uint64               `json:"seen"`
	Skipped  uint64               `json:"skipped"`
	Recorded uint64               `json:"recorded"`
	Rejected uint64               `json:"rejected"`
	Dropped  uint64               `json:"dropped"`
	Elapsed  time.Duration        `json:"elapsed_ns"`
	Path     string               `json:"path,omitempty"`
	Err      error                `json:"-"`
}
