package audioserver

import (
	"time"

	"github.com/google/uuid"
)

// Backend is an asynchronous audio server client.
//
// Every method returns promptly. Results are delivered as events posted to
// the sink passed to Connect, never synchronously from inside the call: the
// caller may hold the lock the event receiver needs.
type Backend interface {
	// Name identifies the backend in logs and the host API descriptor
	Name() string

	// Connect starts connecting as clientName. Progress is reported with
	// ContextStateChanged events until a final state is reached.
	Connect(clientName string, events EventSink) error

	// ListDevices lists sinks (Playback) or sources (Record). Each device is
	// posted as a DeviceListEntry, followed by an EOL entry and OperationDone.
	ListDevices(op OperationID, dir Direction) error

	// NewStream allocates a sub-stream. Nothing is sent to the server until
	// Stream.Connect.
	NewStream(cfg StreamConfig) (Stream, error)

	// Disconnect closes the session. Pending operations may never complete.
	Disconnect() error
}

// StreamConfig describes a sub-stream to create
type StreamConfig struct {
	ID        uuid.UUID
	Name      string
	Direction Direction
	Spec      SampleSpec
	// Device is DeviceInfo.Name of the sink or source, empty for the server default
	Device string
}

// Stream is one direction of a logical stream on the server
type Stream interface {
	// Connect creates the stream on the server with the given attributes.
	// StreamStateChanged events follow; OperationDone completes op once the
	// stream is ready or has failed.
	Connect(op OperationID, attr BufferAttr) error

	// Cork pauses (true) or resumes (false) the stream
	Cork(op OperationID, pause bool) error

	// Flush discards data buffered on the server
	Flush(op OperationID) error

	// Drain completes op when all written playback data has been played
	Drain(op OperationID) error

	// Write answers a SpaceReady request. It never blocks and does not
	// retain p after returning.
	Write(p []byte) error

	// SetBufferAttr updates buffering on the live stream. It never blocks;
	// the server applies the change asynchronously.
	SetBufferAttr(attr BufferAttr) error

	// Time returns the stream position. It never blocks.
	Time() (time.Duration, error)

	// Disconnect releases the stream. Safe on a stream that never connected.
	Disconnect() error
}
