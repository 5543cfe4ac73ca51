package event

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

type Handler[Key, Event any] interface {
	OnEvent(key Key, e Event)
}

// HandlerFunc is an adapter to allow the use of ordinary
// functions as Handlers.
type HandlerFunc[Key, Event any] func(Key, Event)

// OnEvent calls f(key, e).
func (f HandlerFunc[Key, Event]) OnEvent(key Key, e Event) {
	f(key, e)
}

// Expirer is implemented by handlers that can stop wanting events, such as
// handlers feeding a closed stream. Expired handlers are dropped from the bus.
type Expirer interface {
	Expired() bool
}

type registration[Key, Event any] struct {
	id uint64
	h  Handler[Key, Event]
}

// Bus fans events out to its handlers synchronously, in the order the
// handlers were added. A panicking handler does not stop the remaining
// handlers from being notified.
type Bus[Key, Event any] struct {
	handlersMu sync.RWMutex
	nextID     uint64
	handlers   []registration[Key, Event]
}

func NewBus[Key, Event any]() *Bus[Key, Event] {
	return &Bus[Key, Event]{
		handlersMu: sync.RWMutex{},
		handlers:   nil,
	}
}

// AddHandler registers h and returns a function that unregisters it.
func (b *Bus[Key, Event]) AddHandler(h Handler[Key, Event]) (remove func()) {
	b.handlersMu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, registration[Key, Event]{id: id, h: h})
	b.handlersMu.Unlock()

	return func() {
		b.removeIf(func(r registration[Key, Event]) bool { return r.id == id })
	}
}

func (b *Bus[Key, Event]) removeIf(match func(registration[Key, Event]) bool) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	kept := b.handlers[:0:0]
	for _, r := range b.handlers {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	b.handlers = kept
}

func (b *Bus[Key, Event]) Len() int {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()

	return len(b.handlers)
}

// OnEvent notifies every handler of e. The returned error combines the
// panics recovered from individual handlers, if any.
func (b *Bus[Key, Event]) OnEvent(key Key, e Event) error {
	b.handlersMu.RLock()
	// Copy handlers so a handler may add handlers without deadlocking
	handlers := make([]registration[Key, Event], len(b.handlers))
	copy(handlers, b.handlers)
	b.handlersMu.RUnlock()

	var err error
	var expired bool
	for i, r := range handlers {
		if isExpired(r.h) {
			expired = true
			continue
		}
		err = multierr.Append(err, notify(i, r.h, key, e))
		expired = expired || isExpired(r.h)
	}

	if expired {
		b.removeIf(func(r registration[Key, Event]) bool { return isExpired(r.h) })
	}

	return err
}

func isExpired[Key, Event any](h Handler[Key, Event]) bool {
	expirer, ok := h.(Expirer)
	return ok && expirer.Expired()
}

func notify[Key, Event any](i int, h Handler[Key, Event], key Key, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %d panicked: %v", i, r)
		}
	}()

	h.OnEvent(key, e)
	return nil
}
