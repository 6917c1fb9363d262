//go:build linux

package output

import (
	"os"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// syncData makes appended records durable. Metadata other than the size is
// not needed, so fdatasync is enough for OS files.
func syncData(f afero.File) error {
	if osf, ok := f.(*os.File); ok {
		return unix.Fdatasync(int(osf.Fd()))
	}
	return f.Sync()
}
