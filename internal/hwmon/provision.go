// Package hwmon provisions the writable control targets of hwmon sensors.
//
// For a fan sensor, AddTarget decides whether a target attribute exists
// (fan<N>_target for speed control, pwm<N> for duty-cycle control) and, if
// so, builds the matching control object, seeds it with the attribute's
// current value and registers it in the sensor's interface registry.
//
// Targets are built with deferred signals. The caller publishes them with
// EmitObjectAdded once the whole sensor object is set up, so observers never
// see a half-built object.
package hwmon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"hwmon-ng/internal/faults"
	"hwmon-ng/internal/hwmonio"
	"hwmon-ng/internal/sysfs"
)

// Provisioner carries the collaborators AddTarget depends on.
type Provisioner struct {
	// FS backs the attribute existence check. Nil means the host filesystem.
	FS       afero.Fs
	Reporter faults.Reporter
	Log      *zap.Logger
	Policy   hwmonio.RetryPolicy

	provisioned *prometheus.CounterVec
}

// NewProvisioner fills unset collaborators with defaults: the host
// filesystem, a discarding reporter, a no-op logger. reg may be nil.
func NewProvisioner(fsys afero.Fs, reporter faults.Reporter, log *zap.Logger, policy hwmonio.RetryPolicy, reg prometheus.Registerer) *Provisioner {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if reporter == nil {
		reporter = faults.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Provisioner{
		FS:       fsys,
		Reporter: reporter,
		Log:      log,
		Policy:   policy,
		provisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwmon",
			Name:      "targets_provisioned_total",
			Help:      "Control targets created, by interface kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(p.provisioned)
	}
	return p
}

// targetAttr returns the attribute coordinates for a kind.
//
// PWM targets assume the pwm index equals the sensor's own index (fan1 is
// driven by pwm1). There is no per-sensor override.
func targetAttr(kind InterfaceKind, sensor SensorKey) (category, instance, suffix string) {
	if kind == FanPwmKind {
		return sysfs.TypePWM, sensor.ID, ""
	}
	return sensor.Type, sensor.ID, sysfs.EntryTarget
}

// AddTarget creates the E-variant control target for sensor when its target
// attribute exists below io.Path(), stores it in info.Registry under the
// variant's kind and returns it. It returns nil when there is no such
// attribute.
//
// A failed read of the current value does not stop provisioning: the failure
// is reported and the target starts at 0.
//
//	fan := hwmon.AddTarget[hwmon.FanSpeed](p, sensor, io, devPath, info)
func AddTarget[E any, P targetPtr[E]](p *Provisioner, sensor SensorKey, io hwmonio.Accessor, devPath string, info *ObjectInfo) P {
	if p == nil {
		p = NewProvisioner(nil, nil, nil, hwmonio.DefaultRetryPolicy, nil)
	}
	kind := KindOf[E, P]()

	category, instance, suffix := targetAttr(kind, sensor)
	fullPath := sysfs.MakePath(io.Path(), category, instance, suffix)
	if !sysfs.Exists(p.FS, fullPath) {
		var none P
		return none
	}

	var value uint32
	v, err := io.Read(category, instance, suffix, p.Policy)
	if err != nil {
		p.Reporter.Report(faults.NewReadFailure(err, devPath))
		p.Log.Info("Logging failing sysfs file", zap.String("file", fullPath))
	} else {
		value = v
	}

	target := P(new(E))
	target.init(targetParams{
		io:           io,
		devPath:      devPath,
		sensor:       sensor,
		bus:          info.Bus,
		objPath:      info.Path,
		deferSignals: true,
		value:        value,
		fs:           p.FS,
		policy:       p.Policy,
		reporter:     p.Reporter,
		log:          p.Log,
	})
	info.Registry.Set(kind, target)
	if p.provisioned != nil {
		p.provisioned.WithLabelValues(kind.String()).Inc()
	}
	return target
}
