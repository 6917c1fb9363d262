package profconfig

import (
	"fmt"
	"strconv"
	"strings"
)

// WriteMode selects how and when records are persisted.
type WriteMode uint32

const (
	WriteAtEnd WriteMode = 0 // write all records once the session ends
	WriteLive  WriteMode = 1 // append records as they are captured
	NoWrite    WriteMode = 2 // run the session without writing a file

	Invalid WriteMode = 3
)

// String returns the mode's config name.
func (m WriteMode) String() string {
	switch m {
	case WriteAtEnd:
		return "WriteAtEnd"
	case WriteLive:
		return "WriteLive"
	case NoWrite:
		return "NoWrite"
	default:
		return "Invalid"
	}
}

// Valid reports whether m is one of the runnable modes.
func (m WriteMode) Valid() bool {
	return m < Invalid
}

// ParseWriteMode accepts either the numeric value or the mode name.
func ParseWriteMode(s string) (WriteMode, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return WriteMode(n), nil
	}
	for _, m := range []WriteMode{WriteAtEnd, WriteLive, NoWrite} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return Invalid, fmt.Errorf("unknown write mode %q", s)
}

// UnmarshalJSON accepts `1` as well as `"WriteLive"`.
func (m *WriteMode) UnmarshalJSON(data []byte) error {
	mode, err := ParseWriteMode(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalJSON writes the mode name.
func (m WriteMode) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}
