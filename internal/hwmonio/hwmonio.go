// Package hwmonio reads and writes hwmon sysfs attributes with a bounded
// retry policy for the transient errors hwmon drivers are known to return.
package hwmonio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"hwmon-ng/internal/sysfs"
)

// RetryPolicy bounds how often a failed attribute access is retried.
// Retries counts additional attempts after the first one.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// DefaultRetryPolicy is the process-wide policy used unless configured otherwise.
var DefaultRetryPolicy = RetryPolicy{Retries: 10, Delay: 100 * time.Millisecond}

// Accessor is the attribute I/O surface used by target provisioning.
type Accessor interface {
	Read(category, instance, suffix string, policy RetryPolicy) (uint32, error)
	Write(val uint32, category, instance, suffix string, policy RetryPolicy) error
	Path() string
}

// IO accesses attributes below one hwmon directory.
//
// IO holds no mutable state and is safe for concurrent use as long as the
// underlying filesystem is.
type IO struct {
	root string
	fs   afero.Fs
}

// New returns an IO rooted at root. A nil fsys means the host filesystem.
func New(root string, fsys afero.Fs) *IO {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &IO{root: root, fs: fsys}
}

// Path returns the hwmon directory this IO is rooted at.
func (h *IO) Path() string { return h.root }

// Read returns the attribute value, retrying transient errors per policy.
func (h *IO) Read(category, instance, suffix string, policy RetryPolicy) (uint32, error) {
	path := sysfs.MakePath(h.root, category, instance, suffix)
	return backoff.Retry(context.Background(), func() (uint32, error) {
		v, err := h.readOnce(path)
		if err != nil && !IsRetryable(err) {
			return 0, backoff.Permanent(err)
		}
		return v, err
	}, retryOptions(policy)...)
}

// Write stores val in the attribute, retrying transient errors per policy.
func (h *IO) Write(val uint32, category, instance, suffix string, policy RetryPolicy) error {
	path := sysfs.MakePath(h.root, category, instance, suffix)
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		err := h.writeOnce(path, strconv.FormatUint(uint64(val), 10))
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, retryOptions(policy)...)
	return err
}

func retryOptions(policy RetryPolicy) []backoff.RetryOption {
	retries := policy.Retries
	if retries < 0 {
		retries = 0
	}
	delay := policy.Delay
	if delay < 0 {
		delay = 0
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(retries) + 1),
		backoff.WithMaxElapsedTime(0),
	}
}

func (h *IO) readOnce(path string) (uint32, error) {
	b, err := afero.ReadFile(h.fs, path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("hwmonio: %s: empty attribute", path)
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("hwmonio: parse %s: %w", path, err)
	}
	return uint32(n), nil
}

func (h *IO) writeOnce(path string, value string) error {
	// O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation flags at open() even when the mode bits allow writes.
	f, err := h.fs.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := io.WriteString(f, value)
	cerr := f.Close()
	if werr != nil && cerr != nil {
		return errors.Join(werr, cerr)
	}
	if werr != nil {
		return werr
	}
	return cerr
}

var retryableErrnos = []unix.Errno{
	// Bus or device errors and timeouts may be transient.
	unix.EIO,
	unix.ETIMEDOUT,
	// CRC errors.
	unix.EBADMSG,
	// Drivers that return instead of blocking while not ready.
	unix.EAGAIN,
	// Device unplugged while the driver is still bound.
	unix.ENXIO,
	// Driver has not received data yet.
	unix.ENODATA,
	// Remote (e.g. PMBus) device I/O errors.
	unix.EREMOTEIO,
}

// IsRetryable reports whether err carries an errno worth retrying.
// ENOENT is not retried: the attribute went away with its device.
func IsRetryable(err error) bool {
	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
