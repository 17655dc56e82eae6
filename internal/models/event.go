package models

import (
	"encoding/json"
	"fmt"
)

// Event names on the wire.
const (
	EventMsg          = "msg"
	EventRoomUserList = "roomUserList"
	EventCall         = "call"
	EventCandidate    = "candidate"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventBeforeCall   = "beforeCall"
	EventSuccess      = "success"
)

// Frame is a named event as it travels over the websocket in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is the closed set of events a client can send.
// Implementations: RelayEvent, RosterRequest, SignalEvent, AcceptEvent.
type Inbound interface {
	inbound()
}

// RelayEvent is a room-wide broadcast of an opaque payload.
type RelayEvent struct {
	Payload json.RawMessage
}

// RosterRequest asks for the member list of RoomID.
type RosterRequest struct {
	RoomID string `json:"roomId"`
}

// SignalEvent is a call setup message addressed to TargetUID.
// Data is the client's payload, forwarded untouched.
type SignalEvent struct {
	Type      MessageType
	TargetUID string
	Data      json.RawMessage
}

// AcceptEvent routes a call acceptance back to the caller identified by UserID.
type AcceptEvent struct {
	UserID string
	Data   json.RawMessage
}

func (RelayEvent) inbound()    {}
func (RosterRequest) inbound() {}
func (SignalEvent) inbound()   {}
func (AcceptEvent) inbound()   {}

// UnknownEventError is returned by Decode for event names outside the protocol.
type UnknownEventError struct {
	Name string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %q", e.Name)
}

// Decode parses a wire frame into its typed event. Missing routing fields
// are not an error here; the router decides what to do with them.
func Decode(f Frame) (Inbound, error) {
	switch f.Event {
	case EventMsg:
		return RelayEvent{Payload: f.Data}, nil

	case EventRoomUserList:
		var req RosterRequest
		if err := unmarshalObject(f.Data, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return req, nil

	case EventCall, EventCandidate, EventOffer, EventAnswer, EventBeforeCall:
		var target struct {
			TargetUID string `json:"targetUid"`
		}
		if err := unmarshalObject(f.Data, &target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return SignalEvent{Type: MessageType(f.Event), TargetUID: target.TargetUID, Data: f.Data}, nil

	case EventSuccess:
		var caller struct {
			UserID string `json:"userId"`
		}
		if err := unmarshalObject(f.Data, &caller); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return AcceptEvent{UserID: caller.UserID, Data: f.Data}, nil
	}
	return nil, &UnknownEventError{Name: f.Event}
}

// unmarshalObject tolerates an absent payload and rejects non-object payloads.
func unmarshalObject(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// NewFrame encodes payload as the data of a named event.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}
