package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mossy-p/meeting-signaling/internal/models"
)

type emitted struct {
	event   string
	payload string
}

type fakeConn struct {
	id  string
	err error

	mu     sync.Mutex
	events []emitted
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) error {
	if c.err != nil {
		return c.err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, emitted{event: event, payload: string(b)})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.events...)
}

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu    sync.Mutex
	rooms map[string]map[string]models.Participant
	down  bool

	// onLeave runs after a Leave is applied, before it returns.
	onLeave func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]map[string]models.Participant)}
}

func (s *fakeStore) Join(_ context.Context, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	if s.rooms[p.RoomID] == nil {
		s.rooms[p.RoomID] = make(map[string]models.Participant)
	}
	s.rooms[p.RoomID][p.UserID] = p
	return nil
}

func (s *fakeStore) Leave(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return false, errStoreDown
	}
	_, ok := s.rooms[roomID][userID]
	delete(s.rooms[roomID], userID)
	hook := s.onLeave
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ok, nil
}

func (s *fakeStore) Members(_ context.Context, roomID string) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	out := make([]models.Participant, 0, len(s.rooms[roomID]))
	for _, p := range s.rooms[roomID] {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) MemberIDs(_ context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	out := make([]string, 0, len(s.rooms[roomID]))
	for id := range s.rooms[roomID] {
		out = append(out, id)
	}
	return out, nil
}

func (s *fakeStore) has(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID][userID]
	return ok
}

func (s *fakeStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

type testRelay struct {
	registry  *Registry
	store     *fakeStore
	router    *Router
	lifecycle *Lifecycle
}

func newTestRelay() *testRelay {
	registry := NewRegistry()
	store := newFakeStore()
	router := NewRouter(registry, store)
	return &testRelay{
		registry:  registry,
		store:     store,
		router:    router,
		lifecycle: NewLifecycle(registry, store, router),
	}
}
