// Package faults reports device access failures to the host's fault channel.
//
// A Failure carries the errno of the underlying error and the /sys/devices
// path of the device it happened on. Reporting a failure never stops the
// caller; it is recorded, logged and counted.
package faults

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type Kind string

const (
	ReadFailure  Kind = "Sensor.Device.ReadFailure"
	WriteFailure Kind = "Sensor.Device.WriteFailure"
)

type Failure struct {
	Kind       Kind
	Errno      unix.Errno
	DevicePath string
	Err        error
	At         time.Time
}

func NewReadFailure(err error, devPath string) *Failure {
	return newFailure(ReadFailure, err, devPath)
}

func NewWriteFailure(err error, devPath string) *Failure {
	return newFailure(WriteFailure, err, devPath)
}

func newFailure(kind Kind, err error, devPath string) *Failure {
	return &Failure{
		Kind:       kind,
		Errno:      ErrnoOf(err),
		DevicePath: devPath,
		Err:        err,
		At:         time.Now().UTC(),
	}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: device %s: errno %d (%s): %v", f.Kind, f.DevicePath, int(f.Errno), f.Errno.Error(), f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// ErrnoOf extracts the errno carried by err. Errors without one (parse
// failures, empty attributes) are reported as EIO.
func ErrnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// Reporter is the sink device failures are delivered to.
type Reporter interface {
	Report(f *Failure)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(f *Failure)

func (fn ReporterFunc) Report(f *Failure) { fn(f) }

// Discard drops every report.
var Discard Reporter = ReporterFunc(func(*Failure) {})
