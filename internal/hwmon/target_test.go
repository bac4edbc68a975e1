package hwmon

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"hwmon-ng/internal/faults"
	"hwmon-ng/internal/objmodel"
)

func TestFanPwm_SetValueWritesAttribute(t *testing.T) {
	f := newFixture(t)
	p := f.attr(t, "pwm1", "100")
	pwm := AddTarget[FanPwm](f.prov, SensorKey{Type: "fan", ID: "1"}, f.io, devPath, f.info)
	pwm.EmitObjectAdded()

	_, ch := f.bus.Subscribe(4)
	if err := pwm.SetValue(255); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	got, _ := f.fs.ReadAttr(p)
	if got != "255" {
		t.Fatalf("pwm1=%q want 255", got)
	}
	if pwm.Value() != 255 {
		t.Fatalf("value=%d want 255", pwm.Value())
	}
	sig := <-ch
	if sig.Kind != objmodel.PropertiesChanged || sig.Properties[TargetProperty] != uint32(255) {
		t.Fatalf("signal=%+v", sig)
	}
	v, ok := f.bus.Property("/sensors/fan/fan1", FanPwmKind.Interface(), TargetProperty)
	if !ok || v != uint32(255) {
		t.Fatalf("published Target=%v ok=%v", v, ok)
	}
}

func TestFanPwm_SetValueSameValueSkipsWrite(t *testing.T) {
	f := newFixture(t)
	p := f.attr(t, "pwm1", "100")
	pwm := AddTarget[FanPwm](f.prov, SensorKey{Type: "fan", ID: "1"}, f.io, devPath, f.info)
	before := f.fs.Opens(p)
	if err := pwm.SetValue(100); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if f.fs.Opens(p) != before {
		t.Fatalf("unexpected write for unchanged value")
	}
}

func TestFanSpeed_SetValueFailureReports(t *testing.T) {
	f := newFixture(t)
	p := f.attr(t, "fan1_target", "1000")
	speed := AddTarget[FanSpeed](f.prov, SensorKey{Type: "fan", ID: "1"}, f.io, devPath, f.info)
	f.fs.Fail(p, unix.ETIMEDOUT)

	err := speed.SetValue(4000)
	if !errors.Is(err, unix.ETIMEDOUT) {
		t.Fatalf("err=%v want ETIMEDOUT", err)
	}
	if speed.Value() != 1000 {
		t.Fatalf("value=%d want unchanged 1000", speed.Value())
	}
	if len(f.reports) != 1 || f.reports[0].Kind != faults.WriteFailure || f.reports[0].Errno != unix.ETIMEDOUT {
		t.Fatalf("reports=%+v", f.reports)
	}
	entries := f.logs.FilterMessage("Logging failing sysfs file").All()
	if len(entries) != 1 {
		t.Fatalf("info log entries=%d want 1", len(entries))
	}
	if file, _ := entries[0].ContextMap()["file"].(string); !strings.HasSuffix(file, "/fan1_target") {
		t.Fatalf("file=%q", file)
	}
}

func TestFanSpeed_EnableWritesClosedLoopMode(t *testing.T) {
	f := newFixture(t)
	f.attr(t, "fan1_target", "1000")
	en := f.attr(t, "pwm1_enable", "1")
	speed := AddTarget[FanSpeed](f.prov, SensorKey{Type: "fan", ID: "1"}, f.io, devPath, f.info)

	if err := speed.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	got, _ := f.fs.ReadAttr(en)
	if got != "2" {
		t.Fatalf("pwm1_enable=%q want 2", got)
	}
}

func TestFanSpeed_EnableWithoutAttributeIsNoop(t *testing.T) {
	f := newFixture(t)
	f.attr(t, "fan1_target", "1000")
	speed := AddTarget[FanSpeed](f.prov, SensorKey{Type: "fan", ID: "1"}, f.io, devPath, f.info)
	if err := speed.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if len(f.reports) != 0 {
		t.Fatalf("reports=%d want 0", len(f.reports))
	}
}

func TestRegistry_SetOverwrites(t *testing.T) {
	r := NewRegistry()
	a := &FanPwm{}
	b := &FanPwm{}
	r.Set(FanPwmKind, a)
	r.Set(FanPwmKind, b)
	if r.Len() != 1 {
		t.Fatalf("len=%d want 1", r.Len())
	}
	got, _ := r.Get(FanPwmKind)
	if got != Target(b) {
		t.Fatalf("registry kept the first entry")
	}

	var seen []InterfaceKind
	r.Set(FanSpeedKind, &FanSpeed{})
	r.Each(func(kind InterfaceKind, _ Target) { seen = append(seen, kind) })
	if len(seen) != 2 || seen[0] != FanSpeedKind || seen[1] != FanPwmKind {
		t.Fatalf("Each order=%v", seen)
	}
}

func TestSensorKeyString(t *testing.T) {
	if got := (SensorKey{Type: "fan", ID: "2"}).String(); got != "fan2" {
		t.Fatalf("String=%q want fan2", got)
	}
}
