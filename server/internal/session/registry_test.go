package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fakeConn) closes() (calls int, frames [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls, append([][]byte(nil), f.closeFrames...)
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	a := NewChannel(&fakeConn{}, 0)
	b := NewChannel(&fakeConn{}, 0)

	r.Register(a)
	r.Register(b)
	r.Register(a)
	if n := r.Len(); n != 2 {
		t.Errorf("Len: got %d, want 2", n)
	}

	r.Unregister(a)
	r.Unregister(a)
	if n := r.Len(); n != 1 {
		t.Errorf("Len after unregister: got %d, want 1", n)
	}
}

func TestRegistry_Register_RejectsClosedChannel(t *testing.T) {
	r := NewRegistry()
	ch := NewChannel(&fakeConn{}, 0)
	_ = ch.Close(websocket.CloseNormalClosure, "")

	r.Register(ch)
	r.Register(nil)
	if n := r.Len(); n != 0 {
		t.Errorf("Len: got %d, want 0", n)
	}
}

func TestRegistry_Broadcast_DeliversInOrder(t *testing.T) {
	r := NewRegistry()
	conns := []*fakeConn{{}, {}, {}}
	for _, fc := range conns {
		r.Register(NewChannel(fc, 0))
	}

	for i := 1; i <= 5; i++ {
		if n := r.Broadcast(fmt.Sprint(i)); n != 3 {
			t.Fatalf("Broadcast %d: queued for %d, want 3", i, n)
		}
	}

	for i, fc := range conns {
		fc := fc
		waitFor(t, "all frames", func() bool { return len(fc.snapshot()) == 5 })
		for j, got := range fc.snapshot() {
			if want := fmt.Sprint(j + 1); got != want {
				t.Errorf("observer %d frame %d: got %q, want %q", i, j, got, want)
			}
		}
	}
}

func TestRegistry_Broadcast_DropsClosedMember(t *testing.T) {
	r := NewRegistry()
	conns := []*fakeConn{{}, {}, {}}
	chans := make([]*Channel, len(conns))
	for i, fc := range conns {
		chans[i] = NewChannel(fc, 0)
		r.Register(chans[i])
	}
	_ = chans[1].Close(websocket.CloseGoingAway, "")

	if n := r.Broadcast("snapshot"); n != 2 {
		t.Errorf("queued: got %d, want 2", n)
	}
	for _, i := range []int{0, 2} {
		fc := conns[i]
		waitFor(t, "snapshot", func() bool { return len(fc.snapshot()) == 1 })
	}
	if n := r.Len(); n != 2 {
		t.Errorf("Len after broadcast: got %d, want 2 (closed member dropped)", n)
	}
}

func TestRegistry_Broadcast_StalledMemberDoesNotDelayOthers(t *testing.T) {
	r := NewRegistry()
	stalled := &fakeConn{gate: make(chan struct{})}
	defer close(stalled.gate)
	healthy := &fakeConn{}
	r.Register(NewChannel(stalled, 0))
	r.Register(NewChannel(healthy, 0))

	start := time.Now()
	for i := 0; i < 10; i++ {
		r.Broadcast("tick")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Broadcast blocked for %v behind a stalled observer", elapsed)
	}

	waitFor(t, "healthy observer frames", func() bool { return len(healthy.snapshot()) == 10 })
}

func TestRegistry_Broadcast_OverflowEvictsAndClosesMember(t *testing.T) {
	r := NewRegistrySize(2)
	stalled := &fakeConn{gate: make(chan struct{})}
	defer close(stalled.gate)
	slow := NewChannel(stalled, 0)
	r.Register(slow)

	// One frame in flight plus a full queue; the rest overflow.
	for i := 0; i < 10; i++ {
		r.Broadcast("tick")
		time.Sleep(time.Millisecond)
	}

	if n := r.Len(); n != 0 {
		t.Errorf("Len: got %d, want 0 (slow observer dropped)", n)
	}
	waitFor(t, "slow observer closed", func() bool {
		calls, _ := stalled.closes()
		return calls == 1
	})
	if slow.IsOpen() {
		t.Error("slow observer still open")
	}
	_, frames := stalled.closes()
	want := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reasonTooSlow)
	if len(frames) != 1 || string(frames[0]) != string(want) {
		t.Errorf("close frames: got %q, want [%q]", frames, want)
	}
}

func TestRegistry_WriteFailure_EvictsAndClosesMember(t *testing.T) {
	r := NewRegistry()
	broken := &fakeConn{failWrites: true}
	r.Register(NewChannel(broken, 0))

	r.Broadcast("tick")

	waitFor(t, "broken observer removed", func() bool { return r.Len() == 0 })
	waitFor(t, "broken observer closed", func() bool {
		calls, _ := broken.closes()
		return calls == 1
	})
	_, frames := broken.closes()
	want := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reasonWriteFailed)
	if len(frames) != 1 || string(frames[0]) != string(want) {
		t.Errorf("close frames: got %q, want [%q]", frames, want)
	}
}

func TestRegistry_Unregister_DiscardsQueuedFrames(t *testing.T) {
	r := NewRegistry()
	fc := &fakeConn{gate: make(chan struct{})}
	ch := NewChannel(fc, 0)
	r.Register(ch)

	r.Broadcast("first")
	time.Sleep(10 * time.Millisecond) // writer picks up "first" and blocks
	r.Broadcast("second")
	r.Broadcast("third")
	r.Unregister(ch)
	close(fc.gate)

	time.Sleep(20 * time.Millisecond)
	if got := fc.snapshot(); len(got) != 1 || got[0] != "first" {
		t.Errorf("frames: got %v, want [first]", got)
	}
}

func TestRegistry_Broadcast_ToleratesConcurrentMembershipChanges(t *testing.T) {
	r := NewRegistrySize(256)
	for i := 0; i < 20; i++ {
		r.Register(NewChannel(&fakeConn{}, 0))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ch := NewChannel(&fakeConn{}, 0)
				r.Register(ch)
				r.Unregister(ch)
			}
		}()
	}

	for i := 0; i < 200; i++ {
		r.Broadcast("x")
	}
	close(stop)
	wg.Wait()

	if n := r.Len(); n != 20 {
		t.Errorf("Len: got %d, want 20", n)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	fc := &fakeConn{}
	ch := NewChannel(fc, 0)
	r.Register(ch)

	r.CloseAll(websocket.CloseGoingAway, "shutting down")

	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
	if ch.IsOpen() {
		t.Error("member still open after CloseAll")
	}
	if calls, _ := fc.closes(); calls != 1 {
		t.Errorf("transport Close calls: got %d, want 1", calls)
	}
}
