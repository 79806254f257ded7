// ABOUTME: Engine lifecycle states
// ABOUTME: Uninitialized, Idle, Draining and Disposed
package playback

// State is the engine lifecycle state
type State int

const (
	// StateUninitialized means no device context has been opened yet
	StateUninitialized State = iota
	// StateIdle means the device is open and nothing is scheduled
	StateIdle
	// StateDraining means one buffer is scheduled with the device
	StateDraining
	// StateDisposed is terminal; the device has been released
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}
