// Package presence tracks which users are online and through which
// connection. The registry is the only state shared across concurrent
// handler invocations; every compound check-then-act sequence runs under its
// single lock so that duplicate logins and forward-vs-enqueue races cannot
// occur.
package presence

import (
	"errors"
	"sync"
)

// ErrAlreadyBound is returned by Bind when the user already has a live
// connection. The existing session is left untouched.
var ErrAlreadyBound = errors.New("presence: user already bound")

// Conn is the handle the registry keeps per online user. Send is
// fire-and-forget: it must not block and its failure is the caller's to log,
// not to retry. Implementations must be comparable (pointer types are), since
// UnbindConn identifies bindings by handle equality.
type Conn interface {
	Send(payload []byte) error
}

type Registry struct {
	mu     sync.Mutex
	byUser map[int64]Conn
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int64]Conn)}
}

// Bind associates userID with conn. If persist is non-nil it runs while the
// lock is still held, before the binding is inserted; a persist error aborts
// the bind. Holding the lock across the store write closes the window where
// the registry and the persisted presence state disagree during login.
func (r *Registry) Bind(userID int64, conn Conn, persist func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[userID]; ok {
		return ErrAlreadyBound
	}
	if persist != nil {
		if err := persist(); err != nil {
			return err
		}
	}
	r.byUser[userID] = conn
	return nil
}

// Unbind removes the binding for userID. It reports whether one existed.
func (r *Registry) Unbind(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byUser[userID]
	delete(r.byUser, userID)
	return ok
}

// UnbindConn removes the binding owning conn and returns the user id it
// belonged to. Used on abrupt disconnect, where only the connection is known.
// The scan is O(online users); fine at this scale.
func (r *Registry) UnbindConn(conn Conn) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.byUser {
		if c == conn {
			delete(r.byUser, id)
			return id, true
		}
	}
	return 0, false
}

func (r *Registry) Lookup(userID int64) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byUser[userID]
	return c, ok
}

// Route delivers payload to userID's live connection if one is bound,
// otherwise calls enqueue. The lookup and the decision form one critical
// section: a concurrent bind or unbind cannot make the payload both forward
// and enqueue, or neither. A Send failure is reported with delivered=true and
// is not converted into an enqueue; the peer looked live at decision time.
func (r *Registry) Route(userID int64, payload []byte, enqueue func() error) (delivered bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byUser[userID]; ok {
		return true, c.Send(payload)
	}
	return false, enqueue()
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Snapshot returns the currently bound user ids, in no particular order.
func (r *Registry) Snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	return ids
}
