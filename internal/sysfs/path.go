// Package sysfs builds hwmon attribute paths and answers whether they exist.
//
// hwmon attributes follow the kernel naming scheme <type><index>[_<item>],
// e.g. fan2_target or pwm1, below a hwmon directory such as
// /sys/class/hwmon/hwmon3.
package sysfs

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// Attribute categories.
const (
	TypeFan = "fan"
	TypePWM = "pwm"
)

// Attribute suffixes.
const (
	EntryInput  = "input"
	EntryTarget = "target"
	EntryEnable = "enable"
)

// MakePath returns root/<category><instance>, with _<suffix> appended when
// suffix is non-empty. It does no I/O.
func MakePath(root, category, instance, suffix string) string {
	name := category + instance
	if suffix != "" {
		name += "_" + suffix
	}
	return filepath.Join(root, name)
}

// Exists reports whether path exists on fsys. Stat errors other than
// not-exist are treated as absent too; callers only need a yes/no answer.
func Exists(fsys afero.Fs, path string) bool {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	ok, err := afero.Exists(fsys, path)
	if err != nil {
		return false
	}
	return ok
}
