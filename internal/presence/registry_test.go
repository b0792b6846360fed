package presence

import (
	"errors"
	"sync"
	"testing"
)

type fakeConn struct {
	mu   sync.Mutex
	sent [][]byte
	fail bool
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("peer gone")
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func TestBindRejectsSecondConnection(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{}
	second := &fakeConn{}

	if err := r.Bind(1, first, nil); err != nil {
		t.Fatalf("First bind failed: %v", err)
	}
	if err := r.Bind(1, second, nil); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("Expected ErrAlreadyBound, got %v", err)
	}

	// The original binding survives.
	conn, ok := r.Lookup(1)
	if !ok || conn != Conn(first) {
		t.Error("Expected the first connection to remain bound")
	}
}

func TestBindPersistFailureLeavesNoBinding(t *testing.T) {
	r := NewRegistry()
	persistErr := errors.New("store down")

	err := r.Bind(1, &fakeConn{}, func() error { return persistErr })
	if !errors.Is(err, persistErr) {
		t.Fatalf("Expected persist error, got %v", err)
	}
	if _, ok := r.Lookup(1); ok {
		t.Error("Expected no binding after persist failure")
	}
}

func TestUnbindIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Bind(1, &fakeConn{}, nil)

	if !r.Unbind(1) {
		t.Error("Expected Unbind to report an existing binding")
	}
	if r.Unbind(1) {
		t.Error("Expected second Unbind to be a no-op")
	}
	if _, ok := r.Lookup(1); ok {
		t.Error("Expected no binding after unbind")
	}
}

func TestUnbindConn(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}
	r.Bind(1, a, nil)
	r.Bind(2, b, nil)

	id, ok := r.UnbindConn(b)
	if !ok || id != 2 {
		t.Fatalf("Expected to unbind user 2, got id=%d ok=%v", id, ok)
	}
	if _, ok := r.Lookup(2); ok {
		t.Error("Expected user 2 unbound")
	}
	if _, ok := r.Lookup(1); !ok {
		t.Error("Expected user 1 still bound")
	}

	// A connection that never logged in.
	if _, ok := r.UnbindConn(&fakeConn{}); ok {
		t.Error("Expected no binding for an unknown connection")
	}
}

func TestRouteDeliversLive(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Bind(1, conn, nil)

	enqueued := false
	delivered, err := r.Route(1, []byte("hello"), func() error {
		enqueued = true
		return nil
	})
	if err != nil || !delivered {
		t.Fatalf("Expected live delivery, got delivered=%v err=%v", delivered, err)
	}
	if enqueued {
		t.Error("Enqueue must not run when the user is bound")
	}
	if len(conn.sent) != 1 || string(conn.sent[0]) != "hello" {
		t.Errorf("Unexpected delivered payloads: %q", conn.sent)
	}
}

func TestRouteEnqueuesOffline(t *testing.T) {
	r := NewRegistry()

	var queued []byte
	delivered, err := r.Route(7, []byte("later"), func() error {
		queued = []byte("later")
		return nil
	})
	if err != nil || delivered {
		t.Fatalf("Expected offline enqueue, got delivered=%v err=%v", delivered, err)
	}
	if string(queued) != "later" {
		t.Error("Expected enqueue to run for an unbound user")
	}
}

func TestRouteSendFailureIsNotRequeued(t *testing.T) {
	r := NewRegistry()
	r.Bind(1, &fakeConn{fail: true}, nil)

	enqueued := false
	delivered, err := r.Route(1, []byte("x"), func() error {
		enqueued = true
		return nil
	})
	if !delivered || err == nil {
		t.Fatalf("Expected failed live delivery, got delivered=%v err=%v", delivered, err)
	}
	if enqueued {
		t.Error("A failed live send must not fall back to the offline queue")
	}
}

func TestConcurrentBindSingleWinner(t *testing.T) {
	r := NewRegistry()

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.Bind(42, &fakeConn{}, nil)
		}()
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyBound):
			rejections++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly 1 successful bind, got %d", wins)
	}
	if rejections != attempts-1 {
		t.Errorf("Expected %d rejections, got %d", attempts-1, rejections)
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 binding, got %d", r.Len())
	}
}
