//go:build !windows

package util

import (
	"os"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic replaces path so readers never see a partial file
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
