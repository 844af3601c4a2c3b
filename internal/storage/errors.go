package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// Every failure to write a saved image matches ErrFilesystem.
	ErrFilesystem = errors.New("storage: filesystem error")

	ErrUnknownFormat = errors.New("storage: unknown image format")
)

// FilesystemError records the operation and path that failed.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

func (e *FilesystemError) Is(target error) bool {
	return target == ErrFilesystem
}

func fsError(op, path string, err error) error {
	return &FilesystemError{Op: op, Path: path, Err: err}
}
