package events

// Event is a state change raised by a contract engine.
type Event interface {
	EventType() string
}

// Emitter receives engine events. The node hands engines a Buffer and
// forwards its contents once the transaction commits.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines start with it and read-only
// queries keep it.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}
