package util

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

func resolvePath(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// WriteFileAtomic replaces the file at path with data, so that readers
// either see the old or the new content. Symlinks are followed and
// missing parent directories are created.
func WriteFileAtomic(path string, data []byte) error {
	evaluatedPath, err := resolvePath(path)
	if len(evaluatedPath) > 0 && err == nil {
		path = evaluatedPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", path, err)
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}
