package capture

// State is the session manager lifecycle state.
//
//	Uninitialized -> Configuring -> Running <-> Switching
//	                     |            ^ |
//	                     v            | v
//	                Unavailable     Capturing
//
// Unavailable is left only through a fresh Setup. Closed is terminal.
type State int

const (
	Uninitialized State = iota
	Configuring
	Running
	Switching
	Capturing
	Unavailable
	Closed
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Switching:
		return "switching"
	case Capturing:
		return "capturing"
	case Unavailable:
		return "unavailable"
	case Closed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Live reports whether the session is up: running, switching or capturing.
func (s State) Live() bool {
	return s == Running || s == Switching || s == Capturing
}

// RequestKind names the units of work put on the hardware queue.
type RequestKind string

const (
	RequestStart  RequestKind = "start-session"
	RequestSwitch RequestKind = "switch-device"
	RequestFlash  RequestKind = "set-flash"
	RequestFocus  RequestKind = "set-focus-point"
	RequestPhoto  RequestKind = "take-photo"
	RequestStop   RequestKind = "stop-session"
)
