package media

// BusEvent is one message from a pipeline bus.
type BusEvent interface {
	busEvent()
}

// EndOfStream means every sink has drained.
type EndOfStream struct{}

// Error is a fatal framework error.
type Error struct {
	Source   string
	Message  string
	Debug    string
	Category ErrorCategory
}

// StateChanged reports an element state transition.
type StateChanged struct {
	Source string
	Old    State
	New    State
}

// Tag carries stream metadata.
type Tag struct {
	Source string
	Tags   map[string]string
}

// Warning is a non-fatal framework message.
type Warning struct {
	Source  string
	Message string
	Debug   string
}

func (EndOfStream) busEvent()  {}
func (Error) busEvent()        {}
func (StateChanged) busEvent() {}
func (Tag) busEvent()          {}
func (Warning) busEvent()      {}

// EventName returns a short name for ev, used in logs and metrics labels.
func EventName(ev BusEvent) string {
	switch ev.(type) {
	case EndOfStream:
		return "eos"
	case Error:
		return "error"
	case StateChanged:
		return "state_changed"
	case Tag:
		return "tag"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}
