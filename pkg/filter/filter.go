// Package filter decides whether a captured call stack is recorded.
//
// A pattern matches when its regular expression finds a match anywhere in
// the serialized signature; patterns are not anchored to the whole string.
// Excludes always override includes.
package filter

import (
	"strings"

	"github.com/grafana/regexp"
)

// FrameSeparator joins frames into a signature, innermost frame first. Use
// (?m) in a pattern to anchor ^ and $ at individual frames.
const FrameSeparator = "\n"

// Signature serializes a stack into the string filters are matched against.
func Signature(frames []string) string {
	switch len(frames) {
	case 0:
		return ""
	case 1:
		return frames[0]
	}
	return strings.Join(frames, FrameSeparator)
}

// Accept reports whether sig passes the include and exclude lists. An empty
// include list accepts everything. The patterns are only read, so Accept is
// safe for concurrent use.
func Accept(include, exclude []*regexp.Regexp, sig string) bool {
	if len(include) > 0 && !matchAny(include, sig) {
		return false
	}
	return !matchAny(exclude, sig)
}

func matchAny(patterns []*regexp.Regexp, sig string) bool {
	for _, re := range patterns {
		if re.MatchString(sig) {
			return true
		}
	}
	return false
}
