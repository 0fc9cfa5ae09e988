package model

import (
	"errors"
	"fmt"
)

// ErrConfig marks a malformed fixture or configuration document. A run
// aborts before any invocation and no report is written.
var ErrConfig = errors.New("config error")

// ErrInternal marks an internal consistency fault detected during
// aggregation. Report emission is aborted instead of writing wrong numbers.
var ErrInternal = errors.New("internal consistency fault")

func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}
