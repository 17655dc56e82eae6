package relay

import (
	"context"
	"fmt"

	"github.com/mossy-p/meeting-signaling/internal/models"
	"github.com/rs/zerolog/log"
)

// MembershipStore is the persistent room membership the router and the
// session lifecycle read and write.
type MembershipStore interface {
	Join(ctx context.Context, p models.Participant) error
	Leave(ctx context.Context, roomID, userID string) (bool, error)
	Members(ctx context.Context, roomID string) ([]models.Participant, error)
	MemberIDs(ctx context.Context, roomID string) ([]string, error)
}

// signalMessages holds the human readable text of each unicast envelope.
var signalMessages = map[models.MessageType]string{
	models.MessageTypeCall:       "远程呼叫",
	models.MessageTypeCandidate:  "ice candidate",
	models.MessageTypeOffer:      "rtc offer",
	models.MessageTypeAnswer:     "rtc answer",
	models.MessageTypeBeforeCall: "呼叫之前的确定",
	models.MessageTypeSuccess:    "确定回复",
}

// Router resolves recipients for inbound events, through the registry for
// unicast and through the membership store for room-wide delivery.
type Router struct {
	registry *Registry
	store    MembershipStore
}

// NewRouter wires a router to the process registry and the membership store.
func NewRouter(registry *Registry, store MembershipStore) *Router {
	return &Router{registry: registry, store: store}
}

// Route delivers one inbound event from sess. Errors are diagnostics for the
// caller to log; none of them should end the connection.
func (rt *Router) Route(ctx context.Context, sess *Session, ev models.Inbound) error {
	switch ev := ev.(type) {
	case models.RelayEvent:
		room := sess.RoomID()
		if room == "" {
			return fmt.Errorf("relay from %q: %w", sess.UserID(), ErrMissingRoom)
		}
		_, err := rt.Broadcast(ctx, room, ev.Payload)
		return err

	case models.RosterRequest:
		if ev.RoomID == "" {
			return fmt.Errorf("roster request: %w", ErrMissingRoom)
		}
		roster, err := rt.Roster(ctx, ev.RoomID)
		if err != nil {
			return err
		}
		return sess.Emit(models.EventRoomUserList, roster)

	case models.SignalEvent:
		if ev.TargetUID == "" {
			return fmt.Errorf("%s: %w", ev.Type, ErrMissingTarget)
		}
		return rt.Unicast(ev.TargetUID, models.NewEnvelope(ev.Type, signalMessages[ev.Type], ev.Data))

	case models.AcceptEvent:
		if ev.UserID == "" {
			return fmt.Errorf("%s: %w", models.MessageTypeSuccess, ErrMissingTarget)
		}
		return rt.Unicast(ev.UserID, models.NewEnvelope(models.MessageTypeSuccess, signalMessages[models.MessageTypeSuccess], ev.Data))

	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

// Unicast emits payload as a "msg" event on the live connection of userID.
func (rt *Router) Unicast(userID string, payload any) error {
	conn, ok := rt.registry.Lookup(userID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecipientOffline, userID)
	}
	if err := conn.Emit(models.EventMsg, payload); err != nil {
		return fmt.Errorf("deliver to %s: %w", userID, err)
	}
	return nil
}

// Broadcast emits payload to every member of roomID that is connected to this
// process and returns how many deliveries succeeded. Members without a local
// connection are skipped.
func (rt *Router) Broadcast(ctx context.Context, roomID string, payload any) (int, error) {
	ids, err := rt.store.MemberIDs(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("broadcast to %s: %w", roomID, err)
	}

	delivered := 0
	for _, id := range ids {
		conn, ok := rt.registry.Lookup(id)
		if !ok {
			continue
		}
		if err := conn.Emit(models.EventMsg, payload); err != nil {
			log.Warn().Err(err).Str("module", "relay.router").Str("room", roomID).Str("user", id).Msg("broadcast delivery failed")
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Roster returns the stored member records of roomID, connected or not.
func (rt *Router) Roster(ctx context.Context, roomID string) ([]models.Participant, error) {
	members, err := rt.store.Members(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("roster of %s: %w", roomID, err)
	}
	return members, nil
}
