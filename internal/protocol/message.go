package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncEvent is the closed set of events exchanged between clients and the
// server. On the wire each event is externally tagged by its variant name:
//
//	{"event": {"StateUpdate": {"user_state": {...}}}, "sequence": 7}
type SyncEvent interface {
	syncEvent()
}

// UserJoined announces a participant entering the session with its first
// polled state.
type UserJoined struct {
	UserID    string    `json:"user_id"`
	UserState UserState `json:"user_state"`
}

// UserLeft announces a participant leaving the session.
type UserLeft struct {
	UserID string `json:"user_id"`
}

// StateUpdate carries a participant's refreshed playback state.
type StateUpdate struct {
	UserState UserState `json:"user_state"`
}

// UserAction reports an input action (play, pause, seek). Informational;
// receivers only log it.
type UserAction struct {
	UserID string   `json:"user_id"`
	Action string   `json:"action"`
	Value  *float64 `json:"value"`
}

// Heartbeat keeps a connection alive. Informational.
type Heartbeat struct {
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

func (UserJoined) syncEvent()  {}
func (UserLeft) syncEvent()    {}
func (StateUpdate) syncEvent() {}
func (UserAction) syncEvent()  {}
func (Heartbeat) syncEvent()   {}

// SyncMessage is the wire envelope: one event plus a sender-local sequence
// number. Sequence numbers are strictly increasing per sender and carried for
// observability only; receivers must tolerate gaps and out-of-order arrival
// across senders.
type SyncMessage struct {
	Event    SyncEvent
	Sequence uint64
}

// Convenience constructors mirroring the event variants.

func NewStateUpdate(state UserState, sequence uint64) SyncMessage {
	return SyncMessage{Event: StateUpdate{UserState: state}, Sequence: sequence}
}

func NewUserJoined(userID string, state UserState, sequence uint64) SyncMessage {
	return SyncMessage{Event: UserJoined{UserID: userID, UserState: state}, Sequence: sequence}
}

func NewUserLeft(userID string, sequence uint64) SyncMessage {
	return SyncMessage{Event: UserLeft{UserID: userID}, Sequence: sequence}
}

func NewHeartbeat(userID string, sequence uint64) SyncMessage {
	return SyncMessage{
		Event:    Heartbeat{UserID: userID, Timestamp: time.Now().Unix()},
		Sequence: sequence,
	}
}

type messageEnvelope struct {
	Event    map[string]json.RawMessage `json:"event"`
	Sequence uint64                     `json:"sequence"`
}

func variantTag(e SyncEvent) (string, error) {
	switch e.(type) {
	case UserJoined:
		return "UserJoined", nil
	case UserLeft:
		return "UserLeft", nil
	case StateUpdate:
		return "StateUpdate", nil
	case UserAction:
		return "UserAction", nil
	case Heartbeat:
		return "Heartbeat", nil
	default:
		return "", fmt.Errorf("protocol: unknown event type %T", e)
	}
}

// MarshalJSON encodes the message with its externally tagged event.
func (m SyncMessage) MarshalJSON() ([]byte, error) {
	tag, err := variantTag(m.Event)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(m.Event)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", tag, err)
	}
	return json.Marshal(messageEnvelope{
		Event:    map[string]json.RawMessage{tag: payload},
		Sequence: m.Sequence,
	})
}

// UnmarshalJSON decodes a tagged event. A message whose event carries no
// recognized variant tag is an error; receivers log and discard it.
func (m *SyncMessage) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if len(env.Event) != 1 {
		return fmt.Errorf("protocol: expected exactly one event variant, got %d", len(env.Event))
	}

	for tag, payload := range env.Event {
		event, err := decodeVariant(tag, payload)
		if err != nil {
			return err
		}
		m.Event = event
	}
	m.Sequence = env.Sequence
	return nil
}

func decodeVariant(tag string, payload json.RawMessage) (SyncEvent, error) {
	switch tag {
	case "UserJoined":
		var e UserJoined
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("protocol: decode UserJoined: %w", err)
		}
		return e, nil
	case "UserLeft":
		var e UserLeft
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("protocol: decode UserLeft: %w", err)
		}
		return e, nil
	case "StateUpdate":
		var e StateUpdate
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("protocol: decode StateUpdate: %w", err)
		}
		return e, nil
	case "UserAction":
		var e UserAction
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("protocol: decode UserAction: %w", err)
		}
		return e, nil
	case "Heartbeat":
		var e Heartbeat
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("protocol: decode Heartbeat: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("protocol: unknown event variant %q", tag)
	}
}
