package control

import (
	"encoding/json"
	"fmt"
)

// Message discriminants carried in the "Type" field.
const (
	TypeMove = "move"
	TypeQuit = "quit"
)

// Message is a control message sent from the drive client to the robot.
type Message interface {
	Type() string
}

// MoveMessage carries the vehicle command at the time it was staged.
type MoveMessage struct {
	Throttle float64
	Steering float64
}

func (MoveMessage) Type() string { return TypeMove }

func (m MoveMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string  `json:"Type"`
		Throttle float64 `json:"throttle"`
		Steering float64 `json:"steering"`
	}{TypeMove, m.Throttle, m.Steering})
}

// QuitMessage tells the robot the operator is done.
type QuitMessage struct{}

func (QuitMessage) Type() string { return TypeQuit }

func (QuitMessage) MarshalJSON() ([]byte, error) {
	return []byte(`{"Type":"quit"}`), nil
}

// Encode serializes m into its wire form.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type(), err)
	}
	return data, nil
}

// Decode parses a wire message.
func Decode(data []byte) (Message, error) {
	var raw struct {
		Type     string  `json:"Type"`
		Throttle float64 `json:"throttle"`
		Steering float64 `json:"steering"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}

	switch raw.Type {
	case TypeMove:
		return MoveMessage{Throttle: raw.Throttle, Steering: raw.Steering}, nil
	case TypeQuit:
		return QuitMessage{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", raw.Type)
	}
}
