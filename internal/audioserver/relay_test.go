package audioserver

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestRelayCoalescesWhileReceiverIsBusy(t *testing.T) {
	defer goleak.VerifyNone(t)

	got := make(chan Event)
	id := uuid.New()
	r := NewRelay(id, EventSinkFunc(func(ev Event) { got <- ev }))
	defer r.Close()

	r.Pulled(4, true)
	assert.Equal(t, Underflow{Stream: id}, receive(t, got))

	// the relay is now blocked handing over SpaceReady; the audio thread
	// keeps going
	returned := make(chan struct{})
	go func() {
		r.Pulled(8, false)
		r.Pulled(8, true)
		r.Captured([]byte{1, 2})
		r.Captured([]byte{3})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("audio thread blocked on a busy receiver")
	}

	assert.Equal(t, SpaceReady{Stream: id, Bytes: 4}, receive(t, got))
	assert.Equal(t, Underflow{Stream: id}, receive(t, got))
	assert.Equal(t, SpaceReady{Stream: id, Bytes: 16}, receive(t, got))
	assert.Equal(t, DataReady{Stream: id, Data: []byte{1, 2, 3}}, receive(t, got))
}

func TestRelayCapturedIsCopied(t *testing.T) {
	defer goleak.VerifyNone(t)

	got := make(chan Event, 1)
	r := NewRelay(uuid.New(), EventSinkFunc(func(ev Event) { got <- ev }))
	defer r.Close()

	p := []byte{5, 6}
	r.Captured(p)
	p[0] = 0
	ev, ok := receive(t, got).(DataReady)
	assert.True(t, ok)
	assert.Equal(t, []byte{5, 6}, ev.Data)

	r.Captured(nil)
	select {
	case ev := <-got:
		t.Fatalf("unexpected event %T", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRelayCloseDropsPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	posted := make(chan Event, 8)
	r := NewRelay(uuid.New(), EventSinkFunc(func(ev Event) { posted <- ev }))
	r.Close()
	r.Close()

	r.Pulled(4, true)
	r.Captured([]byte{1})
	assert.Empty(t, posted)
}
