package events

import (
	"testing"

	"accordchain/core/types"
)

type testEvent struct{ evt *types.Event }

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

type recorder struct{ seen []string }

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferFlushForwardsInOrder(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(testEvent{evt: &types.Event{Type: "a"}})
	buf.Emit(testEvent{evt: &types.Event{Type: "b"}})
	buf.Emit(nil)

	payloads := buf.Payloads()
	if len(payloads) != 2 || payloads[0].Type != "a" || payloads[1].Type != "b" {
		t.Fatalf("unexpected payloads: %+v", payloads)
	}

	rec := &recorder{}
	buf.Flush(Fanout{rec, NoopEmitter{}})
	if len(rec.seen) != 2 || rec.seen[0] != "a" || rec.seen[1] != "b" {
		t.Fatalf("unexpected forwarded events: %v", rec.seen)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer to be empty after flush")
	}
}

func TestBufferResetDrops(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(testEvent{evt: &types.Event{Type: "a"}})
	buf.Reset()
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 0 {
		t.Fatalf("expected no events after reset, got %v", rec.seen)
	}
}
