// Package device defines the eye tracker contract the pipeline acquires
// samples from.
package device

import (
	"context"
	"fmt"

	"gazemap-go/internal/types"
)

type Device interface {
	// Calibration returns the scene camera intrinsics. It is called once,
	// before the first session starts.
	Calibration(ctx context.Context) (types.Calibration, error)
	// Next blocks until the device delivers one matched scene/gaze pair.
	Next(ctx context.Context) (types.Frame, error)
	Close() error
}

// Error is a device-level failure (disconnect, timeout, decode).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err as an *Error unless it already is one or is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Op: op, Err: err}
}
