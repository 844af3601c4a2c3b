package camera

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Error taxonomy shared by all drivers.
var (
	// No device could be found or opened.
	ErrDeviceUnavailable = xerrors.New("camera: device unavailable")

	// A required feature could not be set.
	ErrConfigurationRejected = xerrors.New("camera: configuration rejected")

	// No buffer arrived before the pull timeout. Transient.
	ErrAcquisitionTimeout = xerrors.New("camera: acquisition timeout")

	// The device went away. Fatal for the source.
	ErrDisconnected = xerrors.New("camera: device disconnected")

	// Next() called on a stream that is not running.
	ErrNotStarted = xerrors.New("camera: stream not started")

	ErrReadOnly       = xerrors.New("camera: nodemap is read-only")
	ErrUnknownFeature = xerrors.New("camera: unknown feature")
	ErrOutOfRange     = xerrors.New("camera: value out of range")
)

// FeatureError reports a feature that could not be written. It matches
// ErrConfigurationRejected under xerrors.Is, and unwraps to the driver error.
type FeatureError struct {
	Source  string
	Feature string
	Value   string
	Err     error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("%s: set %s=%s: %v", e.Source, e.Feature, e.Value, e.Err)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

func (e *FeatureError) Is(target error) bool {
	return target == ErrConfigurationRejected
}

// IsTimeout reports whether err is a (transient) acquisition timeout.
func IsTimeout(err error) bool {
	return xerrors.Is(err, ErrAcquisitionTimeout)
}

// IsDisconnected reports whether err means the device is gone.
func IsDisconnected(err error) bool {
	return xerrors.Is(err, ErrDisconnected)
}
