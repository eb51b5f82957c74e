package purchase

import (
	"fmt"
	"sort"
	"sync"
)

// notifier delivers notifications to observers on a single goroutine, in the
// order they were enqueued. Observers may call back into the manager, so
// intake never blocks: pending notifications sit in an unbounded FIFO.
type notifier struct {
	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextID    uint64

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Notification
	closed  bool
	done    chan struct{}
	once    sync.Once

	logger Logger
}

// newNotifier starts the dispatcher. buffer is the initial queue capacity.
func newNotifier(buffer int, logger Logger) *notifier {
	n := &notifier{
		observers: make(map[uint64]Observer),
		pending:   make([]Notification, 0, buffer),
		done:      make(chan struct{}),
		logger:    logger,
	}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) subscribe(o Observer) func() {
	if o == nil {
		return func() {}
	}

	n.obsMu.Lock()
	id := n.nextID
	n.nextID++
	n.observers[id] = o
	n.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.obsMu.Lock()
			delete(n.observers, id)
			n.obsMu.Unlock()
		})
	}
}

// enqueue appends to the queue without blocking. Notifications raised after
// close are dropped.
func (n *notifier) enqueue(note Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.logger.Debug("notification dropped after close",
			Field{Key: "kind", Value: note.Kind},
			Field{Key: "product_id", Value: note.ProductIdentifier})
		return false
	}
	n.pending = append(n.pending, note)
	n.cond.Signal()
	return true
}

// close stops intake and waits until queued notifications are delivered
func (n *notifier) close() {
	n.once.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.cond.Broadcast()
		n.mu.Unlock()
	})
	<-n.done
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		note, ok := n.next()
		if !ok {
			return
		}
		n.deliver(note)
	}
}

// next waits for the oldest pending notification. ok is false once the
// notifier is closed and drained.
func (n *notifier) next() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.pending) == 0 && !n.closed {
		n.cond.Wait()
	}
	if len(n.pending) == 0 {
		return Notification{}, false
	}
	note := n.pending[0]
	n.pending[0] = Notification{}
	n.pending = n.pending[1:]
	return note, true
}

func (n *notifier) deliver(note Notification) {
	n.obsMu.RLock()
	ids := make([]uint64, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, n.observers[id])
	}
	n.obsMu.RUnlock()

	for _, o := range observers {
		n.call(o, note)
	}
}

func (n *notifier) call(o Observer, note Notification) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("observer panicked",
				Field{Key: "kind", Value: note.Kind},
				Field{Key: "product_id", Value: note.ProductIdentifier},
				Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()
	o(note)
}
