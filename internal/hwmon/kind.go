package hwmon

import "fmt"

// InterfaceKind selects the control semantics of a target.
type InterfaceKind int

const (
	// FanSpeedKind is a target fan speed in RPM (<type><id>_target).
	FanSpeedKind InterfaceKind = iota + 1
	// FanPwmKind is a target duty cycle (pwm<id>).
	FanPwmKind
)

func (k InterfaceKind) String() string {
	switch k {
	case FanSpeedKind:
		return "FAN_SPEED"
	case FanPwmKind:
		return "FAN_PWM"
	default:
		return fmt.Sprintf("InterfaceKind(%d)", int(k))
	}
}

// Interface returns the object-model interface name for the kind.
func (k InterfaceKind) Interface() string {
	switch k {
	case FanSpeedKind:
		return "hwmon.Control.FanSpeed"
	case FanPwmKind:
		return "hwmon.Control.FanPwm"
	default:
		return ""
	}
}

// ParseInterfaceKind accepts either the kind name or its interface name.
func ParseInterfaceKind(s string) (InterfaceKind, error) {
	for _, k := range []InterfaceKind{FanSpeedKind, FanPwmKind} {
		if s == k.String() || s == k.Interface() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("hwmon: unknown interface kind %q", s)
}

// targetPtr is satisfied only by *FanSpeed and *FanPwm: init is unexported,
// so naming any other type as a target variant fails to compile.
type targetPtr[E any] interface {
	*E
	Target
	init(p targetParams)
}

// KindOf returns the interface kind of target variant E.
//
//	hwmon.KindOf[hwmon.FanPwm]() == hwmon.FanPwmKind
func KindOf[E any, P targetPtr[E]]() InterfaceKind {
	var p P
	return p.Kind()
}
