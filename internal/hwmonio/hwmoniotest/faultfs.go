// Package hwmoniotest provides a fault-injecting filesystem for tests that
// exercise hwmon attribute I/O without real hardware.
package hwmoniotest

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FaultFs wraps an afero.Fs and fails Open/OpenFile for selected paths.
// Stat is passed through so that a failing attribute still exists.
type FaultFs struct {
	afero.Fs

	mu    sync.Mutex
	errs  map[string]fault
	opens map[string]int
}

type fault struct {
	err error
	// remaining < 0 fails forever.
	remaining int
}

// NewFaultFs wraps base; a nil base is a fresh MemMapFs.
func NewFaultFs(base afero.Fs) *FaultFs {
	if base == nil {
		base = afero.NewMemMapFs()
	}
	return &FaultFs{Fs: base, errs: map[string]fault{}, opens: map[string]int{}}
}

// Fail makes every open of path return a *os.PathError wrapping err.
func (f *FaultFs) Fail(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[filepath.Clean(path)] = fault{err: err, remaining: -1}
}

// FailTimes makes the next n opens of path fail with err.
func (f *FaultFs) FailTimes(path string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[filepath.Clean(path)] = fault{err: err, remaining: n}
}

// Heal removes an injected failure.
func (f *FaultFs) Heal(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, filepath.Clean(path))
}

// Opens returns how many times path was opened, including failed attempts.
func (f *FaultFs) Opens(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[filepath.Clean(path)]
}

// WriteAttr creates an attribute file holding value.
func (f *FaultFs) WriteAttr(path, value string) error {
	if err := f.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(f.Fs, path, []byte(value), 0o644)
}

// ReadAttr returns the raw attribute content, bypassing injected failures.
func (f *FaultFs) ReadAttr(path string) (string, error) {
	b, err := afero.ReadFile(f.Fs, path)
	return string(b), err
}

func (f *FaultFs) Open(name string) (afero.File, error) {
	if err := f.track(name, "open"); err != nil {
		return nil, err
	}
	return f.Fs.Open(name)
}

func (f *FaultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if err := f.track(name, "open"); err != nil {
		return nil, err
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *FaultFs) Name() string { return "FaultFs" }

func (f *FaultFs) track(name, op string) error {
	name = filepath.Clean(name)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens[name]++
	ft, ok := f.errs[name]
	if !ok {
		return nil
	}
	if ft.remaining > 0 {
		ft.remaining--
		if ft.remaining == 0 {
			delete(f.errs, name)
		} else {
			f.errs[name] = ft
		}
	}
	return &os.PathError{Op: op, Path: name, Err: ft.err}
}
