package integration

import "testing"

func TestEventBusOn(t *testing.T) {
	eb := NewEventBus(testLogger())

	var got []Event
	unsub := eb.On(EventEntryAdded, func(e Event) { got = append(got, e) })

	eb.Emit(Event{Type: EventEntryAdded, Data: "a"})
	eb.Emit(Event{Type: EventEntryRemoved, Data: "b"})
	if len(got) != 1 || got[0].Data != "a" {
		t.Fatalf("got %v, want just the entry_added event", got)
	}

	unsub()
	eb.Emit(Event{Type: EventEntryAdded, Data: "c"})
	if len(got) != 1 {
		t.Error("handler fired after unsubscribe")
	}
}

func TestEventBusOnAll(t *testing.T) {
	eb := NewEventBus(testLogger())

	var count int
	unsub := eb.OnAll(func(Event) { count++ })
	eb.Emit(Event{Type: EventEntryAdded})
	eb.Emit(Event{Type: EventDeviceConnected})
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	unsub()
	eb.Emit(Event{Type: EventEntryAdded})
	if count != 2 {
		t.Error("handler fired after unsubscribe")
	}
}

func TestEventBusRecoversPanickingHandler(t *testing.T) {
	eb := NewEventBus(testLogger())

	eb.OnAll(func(Event) { panic("boom") })
	var reached bool
	eb.OnAll(func(Event) { reached = true })

	eb.Emit(Event{Type: EventEntryAdded})
	if !reached {
		t.Error("panicking handler stopped delivery to later handlers")
	}
}
