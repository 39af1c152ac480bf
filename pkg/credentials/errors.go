package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is wrapped by ConfigurationError
	ErrConfiguration = errors.New("configuration error")

	// ErrNotInstalled is wrapped by ImportError
	ErrNotInstalled = errors.New("agent package not installed")

	// ErrFilesystem is wrapped by FilesystemError
	ErrFilesystem = errors.New("filesystem error")
)

// ConfigurationError reports a missing or unusable setting
type ConfigurationError struct {
	Variable string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Variable, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ImportError reports that the agent package could not be imported
type ImportError struct {
	Package string
	Detail  string
	Hint    string
}

func (e *ImportError) Error() string {
	msg := fmt.Sprintf("%s is not installed or not importable", e.Package)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ImportError) Unwrap() error { return ErrNotInstalled }

// FilesystemError reports an unusable data directory
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("data path %s is not usable: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() []error { return []error{ErrFilesystem, e.Err} }
