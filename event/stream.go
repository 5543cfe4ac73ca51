package event

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrStreamClosed = errors.New("cannot notify closed stream")

type Stream[E any] interface {
	ID() string
	Notify(event E, timeout time.Duration) error
	Close()
}

// ChanStream delivers selected events over a buffered channel. A stream that
// cannot deliver within the notify timeout closes itself.
type ChanStream[E any] struct {
	sync.Mutex

	id string

	closed   bool
	ch       chan E
	selector func(E) bool
}

func NewChanStream[E any](
	id string,
	bufferSize int,
	selector func(event E) bool,
) *ChanStream[E] {
	if selector == nil {
		selector = func(E) bool { return true }
	}

	return &ChanStream[E]{
		id:       id,
		ch:       make(chan E, bufferSize),
		selector: selector,
	}
}

func (s *ChanStream[E]) ID() string {
	return s.id
}

func (s *ChanStream[E]) Notify(event E, timeout time.Duration) error {
	if !s.selector(event) {
		return nil
	}

	s.Lock()
	if s.closed {
		s.Unlock()
		return ErrStreamClosed
	}

	select {
	case s.ch <- event:
	case <-time.After(timeout):
		s.Unlock()
		s.Close()
		return errors.New("timed out sending event to stream")
	}

	s.Unlock()
	return nil
}

func (s *ChanStream[E]) Channel() <-chan E {
	return s.ch
}

func (s *ChanStream[E]) IsClosed() bool {
	s.Lock()
	defer s.Unlock()

	return s.closed
}

func (s *ChanStream[E]) Close() {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.ch)
}
