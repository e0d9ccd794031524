package session

import (
	"sync"

	"github.com/HKUST-SING/singstorage-go/internal/logging"
	"github.com/HKUST-SING/singstorage-go/internal/shm"
	"github.com/HKUST-SING/singstorage-go/internal/transport"
)

// windowKind identifies which of the two shared-memory windows an
// operation requires exclusive use of, if any.
type windowKind int

const (
	windowNone windowKind = iota
	windowRead
	windowWrite
)

// Dispatcher is the per-session scheduler: it admits at most one
// operation per path and at most one operation per shared-memory
// window at a time, queuing the rest. Admission blocks the calling
// goroutine (there are no background workers, per the single-threaded,
// run-to-completion model) until the required resources are free,
// grounded on the teacher's per-tag mutex admission bookkeeping in
// internal/queue/runner.go, generalized here to per-path/per-window
// resources instead of per-tag state.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	conn        *transport.Conn
	writeWindow *shm.WriteWindow
	readWindow  *shm.ReadWindow
	ids         *idGenerator

	activeByPath map[string]bool
	readBusy     bool
	writeBusy    bool
	closed       bool
}

// NewDispatcher constructs a dispatcher bound to an already-connected
// transport and already-attached shared-memory windows.
func NewDispatcher(conn *transport.Conn, writeWindow *shm.WriteWindow, readWindow *shm.ReadWindow) *Dispatcher {
	d := &Dispatcher{
		conn:         conn,
		writeWindow:  writeWindow,
		readWindow:   readWindow,
		ids:          newIDGenerator(),
		activeByPath: make(map[string]bool),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// acquire blocks until path is not active and, if kind requires a
// window, that window is free, then marks both occupied.
func (d *Dispatcher) acquire(path string, kind windowKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if d.closed {
			return &ClosedError{}
		}
		pathBusy := d.activeByPath[path]
		windowBlocked := (kind == windowRead && d.readBusy) || (kind == windowWrite && d.writeBusy)
		if !pathBusy && !windowBlocked {
			break
		}
		d.cond.Wait()
	}

	d.activeByPath[path] = true
	switch kind {
	case windowRead:
		d.readBusy = true
	case windowWrite:
		d.writeBusy = true
	}
	return nil
}

// release marks path and, if applicable, its window free again and
// wakes any goroutines blocked in acquire.
func (d *Dispatcher) release(path string, kind windowKind) {
	d.mu.Lock()
	delete(d.activeByPath, path)
	switch kind {
	case windowRead:
		d.readBusy = false
	case windowWrite:
		d.writeBusy = false
	}
	d.mu.Unlock()
	d.cond.Broadcast()
}

// ClosedError reports that the dispatcher stopped admitting operations
// because the session is closing.
type ClosedError struct{}

func (e *ClosedError) Error() string { return "session: dispatcher is closed" }

// nextID allocates a fresh transaction id for this dispatcher.
func (d *Dispatcher) nextID() TxID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ids.next()
}

func (d *Dispatcher) releaseID(id TxID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids.release(id)
}

// CloseAll forces every admitted operation's resources free, closes
// both shared-memory windows, closes the transport if still open, and
// marks the dispatcher permanently closed. Idempotent.
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.activeByPath = make(map[string]bool)
	d.readBusy = false
	d.writeBusy = false
	d.mu.Unlock()
	d.cond.Broadcast()

	logging.Default().Debug("dispatcher closing")
	d.writeWindow.Close()
	d.readWindow.Close()
	d.conn.Close()
}
