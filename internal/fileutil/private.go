package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
)

// ErrTooLarge indicates a file exceeds the size a caller accepts.
var ErrTooLarge = errors.New("file too large")

// ReadLimited reads at most limit bytes of path. exposed reports whether
// users other than the owner can read the file; it is always false on
// Windows, where mode bits do not describe access.
func ReadLimited(path string, limit int64) (data []byte, exposed bool, err error) {
	if path == "" {
		return nil, false, ErrEmptyPath
	}

	f, err := os.Open(path) //nolint:gosec // G304: path supplied by the user
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("%s is a directory", path)
	}

	data, err = io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return nil, false, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, path, limit)
	}
	return data, isExposed(info.Mode()), nil
}

func isExposed(mode os.FileMode) bool {
	return runtime.GOOS != "windows" && mode.Perm()&0o077 != 0
}
