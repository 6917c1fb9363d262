package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
)

// Extension is appended to every output file.
const Extension = ".jsonl"

// ErrFilepathExhausted is returned when every candidate path up to the
// configured suffix already exists. It ends the session, not the process.
var ErrFilepathExhausted = errors.New("no free output path")

// CandidatePath returns base+suffix+Extension.
func CandidatePath(base string, suffix uint32) string {
	return base + strconv.FormatUint(uint64(suffix), 10) + Extension
}

// ResolvePath returns the first candidate for suffix 0..maxSuffix that does
// not exist yet.
func ResolvePath(fs afero.Fs, base string, maxSuffix uint32) (string, error) {
	for s := uint64(0); s <= uint64(maxSuffix); s++ {
		p := CandidatePath(base, uint32(s))
		exists, err := afero.Exists(fs, p)
		if err != nil {
			return "", fmt.Errorf("cannot probe %q: %w", p, err)
		}
		if !exists {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s[0-%d]%s", ErrFilepathExhausted, base, maxSuffix, Extension)
}

// create opens the first free candidate exclusively, so two writers never
// share a file even when they race on the same base name.
func create(fs afero.Fs, base string, maxSuffix uint32) (afero.File, string, error) {
	if dir := filepath.Dir(base); dir != "." && dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("%w: cannot create output directory: %v", ErrWriteIO, err)
		}
	}
	for s := uint64(0); s <= uint64(maxSuffix); s++ {
		p := CandidatePath(base, uint32(s))
		f, err := fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, p, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return nil, "", fmt.Errorf("%w: cannot create %q: %v", ErrWriteIO, p, err)
	}
	return nil, "", fmt.Errorf("%w: %s[0-%d]%s", ErrFilepathExhausted, base, maxSuffix, Extension)
}
