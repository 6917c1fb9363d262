//go:build !linux

package output

import "github.com/spf13/afero"

func syncData(f afero.File) error {
	return f.Sync()
}
