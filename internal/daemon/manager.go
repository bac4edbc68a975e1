// Package daemon sets up the control targets of every configured sensor and
// routes later target writes to them.
package daemon

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"hwmon-ng/internal/config"
	"hwmon-ng/internal/faults"
	"hwmon-ng/internal/hwmon"
	"hwmon-ng/internal/hwmonio"
	"hwmon-ng/internal/objmodel"
	"hwmon-ng/internal/sysfs"
)

var (
	ErrUnknownObject = errors.New("daemon: unknown object path")
	ErrNoTarget      = errors.New("daemon: object has no such target")
	ErrNotReady      = errors.New("daemon: setup has not run")
)

type Options struct {
	Config config.Config
	// FS backs all attribute access. Nil means the host filesystem.
	FS         afero.Fs
	Bus        objmodel.Bus
	Reporter   faults.Reporter
	Log        *zap.Logger
	Registerer prometheus.Registerer
}

type TargetSnapshot struct {
	Kind      string `json:"kind"`
	Interface string `json:"interface"`
	Value     uint32 `json:"value"`
	Published bool   `json:"published"`
}

type SensorSnapshot struct {
	Sensor  string           `json:"sensor"`
	Path    string           `json:"path"`
	Targets []TargetSnapshot `json:"targets"`
}

type Snapshot struct {
	Ready     bool             `json:"ready"`
	SetupAt   time.Time        `json:"setup_utc,omitempty"`
	Sensors   []SensorSnapshot `json:"sensors"`
	LastError string           `json:"last_error,omitempty"`
}

type sensorObject struct {
	key  hwmon.SensorKey
	info *hwmon.ObjectInfo
}

// Manager owns one ObjectInfo per configured sensor. Setup runs once; after
// that the registries are only read, so SetTarget and Snapshot may be
// called concurrently.
type Manager struct {
	cfg     config.Config
	io      hwmonio.Accessor
	prov    *hwmon.Provisioner
	bus     objmodel.Bus
	log     *zap.Logger
	devPath string

	mu        sync.RWMutex
	ready     bool
	setupAt   time.Time
	lastError string
	objects   []*sensorObject
	byPath    map[string]*sensorObject
}

func New(opts Options) *Manager {
	fsys := opts.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg := opts.Config
	policy := hwmonio.RetryPolicy{Retries: cfg.HWMon.Retry.Count, Delay: cfg.HWMon.Retry.Delay}
	return &Manager{
		cfg:     cfg,
		io:      hwmonio.New(cfg.HWMon.Path, fsys),
		prov:    hwmon.NewProvisioner(fsys, opts.Reporter, log, policy, opts.Registerer),
		bus:     opts.Bus,
		log:     log,
		devPath: cfg.HWMon.DevicePath,
		byPath:  make(map[string]*sensorObject),
	}
}

// Setup provisions the targets of every configured sensor and then publishes
// all of them. Nothing is emitted on the bus until every sensor is set up.
func (m *Manager) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return fmt.Errorf("daemon: setup already ran")
	}

	for _, sc := range m.cfg.Sensors {
		obj := &sensorObject{
			key:  hwmon.SensorKey{Type: sc.Type, ID: sc.ID},
			info: hwmon.NewObjectInfo(m.bus, m.cfg.ObjectPath(sc)),
		}
		if sc.Type == sysfs.TypeFan {
			m.addFanTargets(obj)
		}
		m.objects = append(m.objects, obj)
		m.byPath[obj.info.Path] = obj
	}

	for _, obj := range m.objects {
		obj.info.Registry.Each(func(_ hwmon.InterfaceKind, t hwmon.Target) {
			t.EmitObjectAdded()
		})
	}
	m.ready = true
	m.setupAt = time.Now().UTC()

	provisioned := 0
	for _, obj := range m.objects {
		provisioned += obj.info.Registry.Len()
	}
	m.log.Info("target setup complete",
		zap.Int("sensors", len(m.objects)),
		zap.Int("targets", provisioned),
		zap.String("hwmon", m.io.Path()),
	)
	return nil
}

// addFanTargets picks the target variant for a fan by the configured mode.
// Without a mode, a speed target wins and pwm is the fallback.
func (m *Manager) addFanTargets(obj *sensorObject) {
	var speed *hwmon.FanSpeed
	switch m.cfg.HWMon.TargetMode {
	case config.TargetModeRPM:
		speed = hwmon.AddTarget[hwmon.FanSpeed](m.prov, obj.key, m.io, m.devPath, obj.info)
	case config.TargetModePWM:
		hwmon.AddTarget[hwmon.FanPwm](m.prov, obj.key, m.io, m.devPath, obj.info)
	default:
		speed = hwmon.AddTarget[hwmon.FanSpeed](m.prov, obj.key, m.io, m.devPath, obj.info)
		if speed == nil {
			hwmon.AddTarget[hwmon.FanPwm](m.prov, obj.key, m.io, m.devPath, obj.info)
		}
	}

	if speed != nil {
		if err := speed.Enable(); err != nil {
			m.lastError = err.Error()
			m.log.Warn("enable fan speed control failed",
				zap.String("sensor", obj.key.String()),
				zap.Error(err),
			)
		}
	}
	if obj.info.Registry.Len() == 0 {
		m.log.Debug("no control target", zap.String("sensor", obj.key.String()))
	}
}

// SetTarget writes value to the kind target of the object at path.
func (m *Manager) SetTarget(path string, kind hwmon.InterfaceKind, value uint32) error {
	m.mu.RLock()
	ready := m.ready
	obj := m.byPath[path]
	m.mu.RUnlock()

	if !ready {
		return ErrNotReady
	}
	if obj == nil {
		return fmt.Errorf("%w: %s", ErrUnknownObject, path)
	}
	t, ok := obj.info.Registry.Get(kind)
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrNoTarget, kind, path)
	}
	if err := t.SetValue(value); err != nil {
		m.mu.Lock()
		m.lastError = err.Error()
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		Ready:     m.ready,
		SetupAt:   m.setupAt,
		LastError: m.lastError,
		Sensors:   make([]SensorSnapshot, 0, len(m.objects)),
	}
	for _, obj := range m.objects {
		ss := SensorSnapshot{Sensor: obj.key.String(), Path: obj.info.Path, Targets: []TargetSnapshot{}}
		obj.info.Registry.Each(func(kind hwmon.InterfaceKind, t hwmon.Target) {
			ss.Targets = append(ss.Targets, TargetSnapshot{
				Kind:      kind.String(),
				Interface: kind.Interface(),
				Value:     t.Value(),
				Published: t.Published(),
			})
		})
		snap.Sensors = append(snap.Sensors, ss)
	}
	return snap
}
