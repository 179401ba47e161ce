package utils

import (
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// WrapError annotates err with the failed operation and the caller's
// location. The original error stays reachable through errors.Is and As.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return errors.WithMessagef(err, "%s failed at %s:%d", op, filepath.Base(file), line)
}
