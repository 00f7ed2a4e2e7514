package broker

import (
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case m, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestPublish_AllSubscribersReceive(t *testing.T) {
	b := New(8)
	s1 := b.Subscribe("/topic/replies")
	s2 := b.Subscribe("/topic/replies")
	other := b.Subscribe("/topic/other")

	if n := b.Publish("/topic/replies", "hello"); n != 2 {
		t.Errorf("delivered: got %d, want 2", n)
	}
	for _, s := range []*Subscription{s1, s2} {
		m := recv(t, s)
		if m.Topic != "/topic/replies" || m.Body != "hello" {
			t.Errorf("message: got %+v", m)
		}
	}
	select {
	case m := <-other.C:
		t.Errorf("unrelated topic received %+v", m)
	default:
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := New(8)
	if n := b.Publish("/topic/empty", "x"); n != 0 {
		t.Errorf("delivered: got %d, want 0", n)
	}
}

func TestPublish_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := New(1)
	slow := b.Subscribe("t")
	fast := b.Subscribe("t")

	b.Publish("t", "1")
	recv(t, fast)

	done := make(chan int, 1)
	go func() { done <- b.Publish("t", "2") }()
	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("delivered: got %d, want 1 (slow subscriber full)", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if m := recv(t, slow); m.Body != "1" {
		t.Errorf("slow subscriber: got %q, want 1", m.Body)
	}
}

func TestUnsubscribe_ClosesChannelOnce(t *testing.T) {
	b := New(8)
	sub := b.Subscribe("t")

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if n := b.Subscribers("t"); n != 0 {
		t.Errorf("Subscribers: got %d, want 0", n)
	}
}

func TestBroker_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := New(4)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		sub := b.Subscribe("t")
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.Publish("t", "x")
			}
		}()
		go func(s *Subscription) {
			defer wg.Done()
			b.Unsubscribe(s)
		}(sub)
	}
	wg.Wait()

	if n := b.Subscribers("t"); n != 0 {
		t.Errorf("Subscribers: got %d, want 0", n)
	}
}
