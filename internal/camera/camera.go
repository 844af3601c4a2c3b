// Package camera defines the frame source contract that every camera driver
// implements, and the helpers shared between drivers.
package camera

import (
	"fmt"
	"time"

	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
)

var log = logging.DefaultLogger.WithTag("camera")

// Access describes what a host may do with a device.
type Access int

const (
	ReadWrite Access = iota

	// The device is controlled by another host, e.g. a multicast listener.
	// Its nodemap cannot be written.
	ReadOnly
)

// DeviceInfo identifies one enumerated device.
type DeviceInfo struct {
	// Driver tag, e.g. "sim", "v4l2", "aravis".
	Driver string

	// Driver-specific address used to open the device.
	ID string

	Serial  string
	Model   string
	Vendor  string
	Address string

	Access Access
}

// Name is the human readable identity used for windows and save
// directories, e.g. "TRI050S-Q-194100034".
func (d DeviceInfo) Name() string {
	if d.Model == "" {
		return d.Serial
	}
	return fmt.Sprintf("%s-%s", d.Model, d.Serial)
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s:%s (%s)", d.Driver, d.ID, d.Name())
}

/*
A Source is one opened camera. Start allocates bufferCount buffers and
begins filling them; Next blocks until a filled buffer is available or the
timeout elapses. Every buffer returned by Next must be released exactly once,
which hands it back to the device. Stop halts acquisition and may be called
any number of times.

Example usage:

	if err := src.Start(10); err != nil {
		return err
	}
	defer src.Stop()
	for {
		buf, err := src.Next(time.Second)
		if err != nil {
			// Check IsTimeout(err) / IsDisconnected(err)
		}
		// Read buf.Bytes(), then buf.Release()
	}

Sources are not safe for concurrent Next calls: exactly one goroutine pulls
from a source.
*/
type Source interface {
	Info() DeviceInfo
	Start(bufferCount int) error
	Next(timeout time.Duration) (*media.Buffer, error)
	Stop() error
	Close() error
}

// Nodemap is implemented by sources whose GenICam-style features can be
// written.
type Nodemap interface {
	// SetFeature writes a feature from its string representation.
	SetFeature(name, value string) error

	// Execute runs a command feature, e.g. "UserSetLoad".
	Execute(name string) error

	// FeatureBounds returns the minimum and maximum of a numeric feature.
	FeatureBounds(name string) (min, max float64, err error)
}

// Stats is implemented by sources that count frames lost on the device side.
type Stats interface {
	Dropped() uint64
}
