package relay

import (
	"testing"
	"time"
)

func TestBrokerPublishWakesSubscriber(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1")
	defer cancel()
	other, cancelOther := b.Subscribe("s2")
	defer cancelOther()

	b.Publish("s1")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("subscriber was not signalled")
	}
	select {
	case <-other:
		t.Fatalf("subscriber for another session was signalled")
	default:
	}
}

func TestBrokerPublishDoesNotBlock(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe("s1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.Publish("s1")
		b.Publish("s1")
		b.Publish("s1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked")
	}
}

func TestBrokerCancelRemovesWatcher(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe("s1")
	if b.Watchers() != 1 {
		t.Fatalf("Watchers() = %d, want 1", b.Watchers())
	}
	cancel()
	cancel()
	if b.Watchers() != 0 {
		t.Fatalf("Watchers() = %d, want 0", b.Watchers())
	}
}
