package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mossy-p/meeting-signaling/internal/models"
	"github.com/rs/zerolog/log"
)

// State is the position of a session in its connect/disconnect lifecycle.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateAnonymous
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateAnonymous:
		return "anonymous"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ConnectParams are the initial parameters a client supplies when connecting.
type ConnectParams struct {
	UserID   string
	RoomID   string
	Nickname string
	Pub      json.RawMessage
}

// Session is the server side of one client connection. It implements Conn
// by delegating to the underlying transport handle.
type Session struct {
	params ConnectParams
	conn   Conn

	mu         sync.Mutex
	state      State
	registered bool
}

func (s *Session) ID() string                           { return s.conn.ID() }
func (s *Session) Emit(event string, payload any) error { return s.conn.Emit(event, payload) }
func (s *Session) UserID() string                       { return s.params.UserID }
func (s *Session) Nickname() string                     { return s.params.Nickname }

// RoomID is empty for sessions that did not join a room.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined {
		return ""
	}
	return s.params.RoomID
}

func (s *Session) record() models.Participant {
	return models.Participant{UserID: s.params.UserID, RoomID: s.params.RoomID, Nickname: s.params.Nickname, Pub: s.params.Pub}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Lifecycle keeps the registry and the membership store in step as sessions
// come and go, and announces presence to the room.
type Lifecycle struct {
	registry *Registry
	store    MembershipStore
	router   *Router
}

// NewLifecycle shares the router's registry and store.
func NewLifecycle(registry *Registry, store MembershipStore, router *Router) *Lifecycle {
	return &Lifecycle{registry: registry, store: store, router: router}
}

// Connect attaches conn as the live connection of p.UserID and, when a room
// is given, records the membership and broadcasts "join". Store failures
// are logged; the session stays usable for unicast.
//
// A connection without a userId is kept open but cannot be addressed.
func (l *Lifecycle) Connect(ctx context.Context, p ConnectParams, conn Conn) *Session {
	s := &Session{params: p, conn: conn, state: StateConnecting}
	logger := log.With().Str("module", "relay.session").Str("conn", conn.ID()).Str("user", p.UserID).Str("room", p.RoomID).Logger()

	if p.UserID == "" {
		logger.Warn().Err(ErrMissingUserID).Msg("connection is not addressable")
		s.state = StateAnonymous
		return s
	}

	// The state is settled before the session becomes visible in the registry
	// so a concurrent disconnect of a replaced connection sees the room.
	if p.RoomID == "" {
		s.state = StateAnonymous
	} else {
		s.state = StateJoined
	}
	s.registered = true
	if prev, replaced := l.registry.Register(p.UserID, s); replaced {
		logger.Info().Str("previous_conn", prev.ID()).Msg("newer connection takes over participant")
	}

	if p.RoomID == "" {
		logger.Info().Msg("connected without room")
		return s
	}

	if err := l.store.Join(ctx, s.record()); err != nil {
		logger.Error().Err(err).Msg("membership write failed, continuing without room record")
	}

	n, err := l.router.Broadcast(ctx, p.RoomID, models.JoinEnvelope(p.UserID, p.Nickname))
	if err != nil {
		logger.Error().Err(err).Msg("join announcement failed")
	}
	logger.Info().Int("notified", n).Msg("joined room")
	return s
}

// Disconnect releases the session. It is safe to call more than once.
//
// When a newer connection for the same participant has already replaced this
// one in the same room, the membership record and presence belong to the
// newer session and are left alone.
func (l *Lifecycle) Disconnect(ctx context.Context, s *Session) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	wasJoined := s.state == StateJoined
	s.state = StateDisconnected
	s.mu.Unlock()

	p := s.params
	logger := log.With().Str("module", "relay.session").Str("conn", s.ID()).Str("user", p.UserID).Str("room", p.RoomID).Logger()

	replaced := s.registered && !l.registry.Release(p.UserID, s)
	if replaced {
		if l.supersededInRoom(p.UserID, p.RoomID) {
			logger.Info().Msg("disconnect of replaced connection, membership kept")
			return
		}
	}

	if !wasJoined {
		logger.Info().Msg("disconnected")
		return
	}

	removed, err := l.store.Leave(ctx, p.RoomID, p.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("membership removal failed, record may be stale")
	}
	// A replaced connection whose successor already left finds no record;
	// that departure has been announced.
	if replaced && err == nil && !removed {
		logger.Info().Msg("disconnect of replaced connection, leave already announced")
		return
	}

	// The participant may have reconnected to the same room while the removal
	// was in flight; restore the newer session's record.
	if next, ok := l.sessionOf(p.UserID); ok && next.RoomID() == p.RoomID {
		if err := l.store.Join(ctx, next.record()); err != nil {
			logger.Error().Err(err).Msg("membership restore failed")
		}
		logger.Info().Str("next_conn", next.ID()).Msg("participant rejoined during disconnect, leave suppressed")
		return
	}

	n, err := l.router.Broadcast(ctx, p.RoomID, models.LeaveEnvelope(p.UserID, p.Nickname))
	if err != nil {
		logger.Error().Err(err).Msg("leave announcement failed")
	}
	logger.Info().Int("notified", n).Msg("left room")
}

// supersededInRoom reports whether userID is currently held by another
// session that joined roomID.
func (l *Lifecycle) supersededInRoom(userID, roomID string) bool {
	other, ok := l.sessionOf(userID)
	return ok && other.RoomID() == roomID
}

func (l *Lifecycle) sessionOf(userID string) (*Session, bool) {
	cur, ok := l.registry.Lookup(userID)
	if !ok {
		return nil, false
	}
	s, ok := cur.(*Session)
	return s, ok
}
