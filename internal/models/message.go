package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MessageType is the type tag of an envelope delivered to a client.
type MessageType string

const (
	MessageTypeJoin         MessageType = "join"
	MessageTypeLeave        MessageType = "leave"
	MessageTypeRoomUserList MessageType = "roomUserList"
	MessageTypeCall         MessageType = "call"
	MessageTypeCandidate    MessageType = "candidate"
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeBeforeCall   MessageType = "beforeCall"
	MessageTypeSuccess      MessageType = "success"
	MessageTypeRelay        MessageType = "msg"
)

// CodeOK is the only code the relay currently produces.
const CodeOK = 200

// Envelope is the message shape delivered on the "msg" event.
type Envelope struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    any         `json:"data"`
}

// NewEnvelope builds an envelope with CodeOK.
func NewEnvelope(t MessageType, message string, data any) Envelope {
	return Envelope{Type: t, Message: message, Code: CodeOK, Data: data}
}

// Presence is the data carried by join and leave envelopes.
type Presence struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// JoinEnvelope announces that userID entered the room.
func JoinEnvelope(userID, nickname string) Envelope {
	return NewEnvelope(MessageTypeJoin, userID+" join then room", Presence{UserID: userID, Nickname: nickname})
}

// LeaveEnvelope announces that userID left the room.
func LeaveEnvelope(userID, nickname string) Envelope {
	return NewEnvelope(MessageTypeLeave, userID+" leave the room ", Presence{UserID: userID, Nickname: nickname})
}

// Participant is the detail record stored for each room member.
type Participant struct {
	UserID   string          `json:"userId"`
	RoomID   string          `json:"roomId"`
	Nickname string          `json:"nickname,omitempty"`
	Pub      json.RawMessage `json:"pub,omitempty"`
}

// ParsePublicFlag turns the raw "pub" connect parameter into a JSON value.
// Booleans and numbers keep their type, anything else becomes a string.
func ParsePublicFlag(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil
	case raw == "true" || raw == "false":
		return json.RawMessage(raw)
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return json.RawMessage(raw)
	}
	b, _ := json.Marshal(raw)
	return b
}
