package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// --- helpers ----------------------------------------------------------------

// fakeConn records frames and flags any overlapping WriteMessage calls.
type fakeConn struct {
	inFlight    atomic.Int32
	overlaps    atomic.Int32
	writeDelay  time.Duration
	failWrites  bool
	gate        chan struct{} // when non-nil, WriteMessage blocks until closed
	mu          sync.Mutex
	frames      []string
	closeFrames [][]byte
	closeCalls  int
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if !f.inFlight.CompareAndSwap(0, 1) {
		f.overlaps.Add(1)
	}
	defer f.inFlight.Store(0)

	if f.gate != nil {
		<-f.gate
	}
	if f.writeDelay > 0 {
		time.Sleep(f.writeDelay)
	}
	if f.failWrites {
		return errors.New("broken pipe")
	}
	if messageType != websocket.TextMessage {
		return fmt.Errorf("unexpected message type %d", messageType)
	}
	f.mu.Lock()
	f.frames = append(f.frames, string(data))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage {
		f.mu.Lock()
		f.closeFrames = append(f.closeFrames, data)
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	copy(out, f.frames)
	return out
}

// --- tests ------------------------------------------------------------------

func TestChannel_Send_WritesTextFrame(t *testing.T) {
	fc := &fakeConn{}
	ch := NewChannel(fc, time.Second)

	if err := ch.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frames := fc.snapshot()
	if len(frames) != 1 || frames[0] != "hello" {
		t.Errorf("frames: got %v, want [hello]", frames)
	}
	if ch.ID() == "" {
		t.Error("ID: got empty string")
	}
}

func TestChannel_ConcurrentSends_NeverInterleave(t *testing.T) {
	fc := &fakeConn{writeDelay: 100 * time.Microsecond}
	ch := NewChannel(fc, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := ch.Send(fmt.Sprintf("frame-%d", i)); err != nil {
				t.Errorf("Send %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if n := fc.overlaps.Load(); n != 0 {
		t.Errorf("overlapping writes: got %d, want 0", n)
	}
	if n := len(fc.snapshot()); n != 100 {
		t.Errorf("frames: got %d, want 100", n)
	}
}

func TestChannel_SendAll_GroupsStayContiguous(t *testing.T) {
	fc := &fakeConn{}
	ch := NewChannel(fc, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("g%d", i)
			if err := ch.SendAll(p+":a", p+":b", p+":c"); err != nil {
				t.Errorf("SendAll %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	frames := fc.snapshot()
	if len(frames) != 150 {
		t.Fatalf("frames: got %d, want 150", len(frames))
	}
	for i := 0; i < len(frames); i += 3 {
		prefix := strings.SplitN(frames[i], ":", 2)[0]
		want := []string{prefix + ":a", prefix + ":b", prefix + ":c"}
		for j := 0; j < 3; j++ {
			if frames[i+j] != want[j] {
				t.Fatalf("group at %d: got %v, want %v", i, frames[i:i+3], want)
			}
		}
	}
}

func TestChannel_SendAfterClose_ReturnsErrClosed(t *testing.T) {
	fc := &fakeConn{}
	ch := NewChannel(fc, 0)
	_ = ch.Close(websocket.CloseNormalClosure, "bye")

	err := ch.Send("late")
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close: got %v, want ErrClosed", err)
	}
	var se *SendError
	if !errors.As(err, &se) || se.ID != ch.ID() {
		t.Errorf("SendError: got %#v, want ID %q", se, ch.ID())
	}
	if n := len(fc.snapshot()); n != 0 {
		t.Errorf("frames written after close: %d", n)
	}
}

func TestChannel_WriteFailure_MarksClosed(t *testing.T) {
	fc := &fakeConn{failWrites: true}
	ch := NewChannel(fc, 0)

	if err := ch.Send("x"); err == nil {
		t.Fatal("Send on failing transport: expected error, got nil")
	}
	if ch.IsOpen() {
		t.Error("IsOpen after write failure: got true, want false")
	}
	if err := ch.Send("y"); !errors.Is(err, ErrClosed) {
		t.Errorf("second Send: got %v, want ErrClosed", err)
	}
}

func TestChannel_Close_IsIdempotent(t *testing.T) {
	fc := &fakeConn{}
	ch := NewChannel(fc, 0)

	_ = ch.Close(websocket.CloseNormalClosure, "Alright then, goodbye!")
	_ = ch.Close(websocket.CloseInternalServerErr, "ignored")

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closeCalls != 1 {
		t.Errorf("transport Close calls: got %d, want 1", fc.closeCalls)
	}
	if len(fc.closeFrames) != 1 {
		t.Fatalf("close frames: got %d, want 1", len(fc.closeFrames))
	}
	want := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Alright then, goodbye!")
	if string(fc.closeFrames[0]) != string(want) {
		t.Errorf("close frame: got %q, want %q", fc.closeFrames[0], want)
	}
}

func TestChannel_LockIsPerConnection(t *testing.T) {
	stalled := &fakeConn{gate: make(chan struct{})}
	slow := NewChannel(stalled, 0)
	fast := NewChannel(&fakeConn{}, 0)

	go func() { _ = slow.Send("stuck") }()
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- fast.Send("free") }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Send on unrelated channel: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send on unrelated channel blocked behind a stalled connection")
	}
	close(stalled.gate)
}

func TestChannel_Close_DoesNotWaitForStalledSend(t *testing.T) {
	fc := &fakeConn{gate: make(chan struct{})}
	ch := NewChannel(fc, 0)

	go func() { _ = ch.Send("stuck") }()
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = ch.Close(websocket.CloseGoingAway, "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind an in-flight send")
	}
	close(fc.gate)
}
