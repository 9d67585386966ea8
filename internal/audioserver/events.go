package audioserver

import "github.com/google/uuid"

// Event is a notification from the server client, delivered to the
// session's event goroutine.
type Event interface {
	isEvent()
}

// ContextStateChanged reports a connection state transition. Err carries the
// failure cause when State is ContextFailed.
type ContextStateChanged struct {
	State ContextState
	Err   error
}

// DeviceListEntry is one reply entry of a ListDevices request. The last entry
// of a listing has EOL set and no Info.
type DeviceListEntry struct {
	Op        OperationID
	Direction Direction
	Info      DeviceInfo
	EOL       bool
}

// OperationDone completes an asynchronous request
type OperationDone struct {
	Op  OperationID
	Err error
}

// StreamStateChanged reports a sub-stream state transition
type StreamStateChanged struct {
	Stream uuid.UUID
	State  StreamState
	Err    error
}

// StreamStarted is posted when the server begins consuming or producing data
type StreamStarted struct {
	Stream uuid.UUID
}

// DataReady carries captured bytes. The slice is owned by the receiver.
type DataReady struct {
	Stream uuid.UUID
	Data   []byte
}

// SpaceReady asks for up to Bytes bytes of playback data. The receiver
// answers with at most one Stream.Write.
type SpaceReady struct {
	Stream uuid.UUID
	Bytes  int
}

// Underflow reports that the server ran out of playback data
type Underflow struct {
	Stream uuid.UUID
}

func (ContextStateChanged) isEvent() {}
func (DeviceListEntry) isEvent()     {}
func (OperationDone) isEvent()       {}
func (StreamStateChanged) isEvent()  {}
func (StreamStarted) isEvent()       {}
func (DataReady) isEvent()           {}
func (SpaceReady) isEvent()          {}
func (Underflow) isEvent()           {}

// EventSink receives events from a backend. Post may block until the
// receiver has queue space; audio threads post through a Relay.
type EventSink interface {
	Post(ev Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ev Event)

// Post calls f(ev)
func (f EventSinkFunc) Post(ev Event) { f(ev) }
