package supabase

import (
	"sync"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
)

// AuthEventKind is the raw event name used by the auth client
type AuthEventKind string

const (
	EventInitialSession AuthEventKind = "INITIAL_SESSION"
	EventSignedIn       AuthEventKind = "SIGNED_IN"
	EventSignedOut      AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is one auth state change. Session is nil when signed out.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *models.Session
}

// subscriber delivers events in order without ever blocking the emitter
type subscriber struct {
	out    chan AuthEvent
	signal chan struct{}
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	queue  []AuthEvent
	primed bool
}

func newSubscriber() *subscriber {
	s := &subscriber{
		out:    make(chan AuthEvent),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(ev AuthEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}
