package eventbus

import "testing"

type tick struct {
	Index int64
	Net   float64
}

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[tick]()
	ch := bus.Subscribe()
	bus.Publish(tick{Index: 1, Net: -2.5})
	v := <-ch
	if v.Index != 1 || v.Net != -2.5 {
		t.Fatalf("unexpected event %+v", v)
	}
	bus.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after unsubscribe")
	}
}

func TestTypedBusDropsWhenSubscriberLags(t *testing.T) {
	bus := NewTyped[int]()
	ch := bus.SubscribeBuffered(2)
	for i := 0; i < 5; i++ {
		bus.Publish(i)
	}
	if got := bus.Dropped(); got != 3 {
		t.Fatalf("expected 3 drops got %d", got)
	}
	if v := <-ch; v != 0 {
		t.Fatalf("expected oldest event first, got %d", v)
	}
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish(1)
	if _, ok := <-bus.Subscribe(); ok {
		t.Fatalf("expected subscription on closed bus to be closed")
	}
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
