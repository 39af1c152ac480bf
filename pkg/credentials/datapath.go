package credentials

import (
	"errors"
	"os"
)

// EnsureDataPath makes sure path is an existing, writable directory. It is
// created when missing; failures are not retried.
func EnsureDataPath(path string) error {
	if path == "" {
		return &ConfigurationError{Variable: "BIOMNI_DATA_PATH", Reason: "is not set"}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return &FilesystemError{Path: path, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &FilesystemError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return &FilesystemError{Path: path, Err: errors.New("not a directory")}
	}

	f, err := os.CreateTemp(path, ".biomni-write-check-*")
	if err != nil {
		return &FilesystemError{Path: path, Err: err}
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return &FilesystemError{Path: path, Err: err}
	}

	return nil
}
