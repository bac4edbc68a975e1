package hwmon

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"hwmon-ng/internal/faults"
	"hwmon-ng/internal/hwmonio"
	"hwmon-ng/internal/objmodel"
	"hwmon-ng/internal/sysfs"
)

// TargetProperty is the property name both control interfaces publish.
const TargetProperty = "Target"

// pwmEnableClosedLoop is the pwm<id>_enable mode in which the driver steers
// the fan to <type><id>_target on its own.
const pwmEnableClosedLoop = 2

type targetParams struct {
	io           hwmonio.Accessor
	devPath      string
	sensor       SensorKey
	bus          objmodel.Bus
	objPath      string
	deferSignals bool
	value        uint32

	fs       afero.Fs
	policy   hwmonio.RetryPolicy
	reporter faults.Reporter
	log      *zap.Logger
}

// control is the state FanSpeed and FanPwm share.
type control struct {
	*objmodel.Object

	io       hwmonio.Accessor
	root     string
	devPath  string
	sensor   SensorKey
	fs       afero.Fs
	policy   hwmonio.RetryPolicy
	reporter faults.Reporter
	log      *zap.Logger

	mu    sync.Mutex
	value uint32
}

func (c *control) setup(kind InterfaceKind, p targetParams) {
	c.Object = objmodel.NewObject(p.bus, p.objPath, kind.Interface(), p.deferSignals)
	c.io = p.io
	c.root = p.io.Path()
	c.devPath = p.devPath
	c.sensor = p.sensor
	c.fs = p.fs
	c.policy = p.policy
	c.reporter = p.reporter
	c.log = p.log
	c.value = p.value
	c.Object.Set(TargetProperty, p.value)
}

func (c *control) ObjectPath() string { return c.Object.Path() }

// DevicePath returns the /sys/devices path of the hwmon device.
func (c *control) DevicePath() string { return c.devPath }

// Root returns the hwmon directory the target's attributes live in.
func (c *control) Root() string { return c.root }

// ID returns the sensor instance the target belongs to.
func (c *control) ID() string { return c.sensor.ID }

func (c *control) Value() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// store writes v to the attribute when it differs from the current value.
func (c *control) store(v uint32, category, suffix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == c.value {
		return nil
	}
	if err := c.write(v, category, suffix); err != nil {
		return err
	}
	c.value = v
	c.Object.Set(TargetProperty, v)
	return nil
}

func (c *control) write(v uint32, category, suffix string) error {
	if err := c.io.Write(v, category, c.sensor.ID, suffix, c.policy); err != nil {
		file := sysfs.MakePath(c.root, category, c.sensor.ID, suffix)
		c.reporter.Report(faults.NewWriteFailure(err, c.devPath))
		c.log.Info("Logging failing sysfs file", zap.String("file", file))
		return fmt.Errorf("hwmon: write %s: %w", file, err)
	}
	return nil
}

// FanSpeed controls a fan's target speed in RPM.
type FanSpeed struct {
	control
}

func (*FanSpeed) Kind() InterfaceKind { return FanSpeedKind }

func (f *FanSpeed) init(p targetParams) { f.setup(FanSpeedKind, p) }

// SetValue writes a new target RPM to <type><id>_target.
func (f *FanSpeed) SetValue(v uint32) error {
	return f.store(v, f.sensor.Type, sysfs.EntryTarget)
}

// Enable hands the fan to the driver's closed-loop speed control by writing
// pwm<id>_enable, when the device has that attribute.
func (f *FanSpeed) Enable() error {
	path := sysfs.MakePath(f.root, sysfs.TypePWM, f.sensor.ID, sysfs.EntryEnable)
	if !sysfs.Exists(f.fs, path) {
		return nil
	}
	return f.write(pwmEnableClosedLoop, sysfs.TypePWM, sysfs.EntryEnable)
}

// FanPwm controls a fan's PWM duty cycle.
type FanPwm struct {
	control
}

func (*FanPwm) Kind() InterfaceKind { return FanPwmKind }

func (f *FanPwm) init(p targetParams) { f.setup(FanPwmKind, p) }

// SetValue writes a new duty cycle to pwm<id>.
func (f *FanPwm) SetValue(v uint32) error {
	return f.store(v, sysfs.TypePWM, "")
}

var (
	_ Target = (*FanSpeed)(nil)
	_ Target = (*FanPwm)(nil)
)
