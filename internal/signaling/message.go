package signaling

import (
	"encoding/json"
	"fmt"
)

// Client-to-server message types.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// Server-to-client message types. Offer/answer/candidate keep their inbound
// type on the way out.
const (
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
)

// ClientMessage is the inbound wire envelope. Offer, answer and candidate
// payloads are opaque blobs; the server never inspects their contents.
type ClientMessage struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId"`
	Name      string          `json:"name"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

// ParseClientMessage decodes and validates an inbound envelope. Every message
// type carries the room id it is scoped to; relay messages must also carry
// their payload field.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	switch msg.Type {
	case TypeJoinRoom, TypeLeaveRoom:
	case TypeOffer:
		if len(msg.Offer) == 0 {
			return nil, fmt.Errorf("offer message missing offer payload")
		}
	case TypeAnswer:
		if len(msg.Answer) == 0 {
			return nil, fmt.Errorf("answer message missing answer payload")
		}
	case TypeICECandidate:
		if len(msg.Candidate) == 0 {
			return nil, fmt.Errorf("ice-candidate message missing candidate payload")
		}
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}

	if msg.RoomID == "" {
		return nil, fmt.Errorf("%s message missing roomId", msg.Type)
	}

	return &msg, nil
}

// presenceEvent is the user-joined / user-left notification sent to the other
// members of a room.
type presenceEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// relayEvent wraps a forwarded offer/answer/candidate with the relay scope
// and the sender's connection id so recipients know whom to reply to.
type relayEvent struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId"`
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
