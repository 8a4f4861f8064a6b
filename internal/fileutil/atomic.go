// Package fileutil provides file helpers shared by the writers.
package fileutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/ifcslim/core/errors"
)

// WriteAtomic creates path by calling fn on a temporary file in the same
// directory and renaming it into place. Missing parent directories are
// created. On failure path is left untouched. It returns the size of the
// written file.
func WriteAtomic(path string, fn func(w io.Writer) error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.NewIO("create directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return 0, errors.NewIO("create temp file", dir, err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, err
	}

	if err := tmp.Chmod(0644); err != nil {
		return fail(errors.NewIO("chmod", path, err))
	}
	if err := fn(tmp); err != nil {
		return fail(err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return fail(errors.NewIO("stat", path, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, errors.NewIO("close", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, errors.NewIO("rename", path, err)
	}
	return info.Size(), nil
}
