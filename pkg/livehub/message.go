package livehub

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypePing           MessageType = "ping"
	TypePipelineUpdate MessageType = "pipeline-update"
	TypeDocument       MessageType = "document"
	TypeChatMessage    MessageType = "message"

	// TypeWatch is the only client to server control message.
	TypeWatch MessageType = "watch"
)

// Message is a server to client push. Implementations are the typed payloads
// below; the wire form carries the type discriminator.
type Message interface {
	Type() MessageType
}

// Ping is the application-level keepalive for clients that cannot see
// WebSocket control frames. The hub itself pings with native frames, so Ping
// only exists to keep the wire vocabulary complete for Encode and Decode.
type Ping struct{}

type PipelineUpdate struct {
	ApplicationID string `json:"applicationId"`
}

type DocumentUpdate struct {
	ApplicationID string `json:"applicationId"`
}

type ChatMessage struct {
	ApplicationID string `json:"applicationId"`
	Msg           string `json:"msg"`
}

func (Ping) Type() MessageType           { return TypePing }
func (PipelineUpdate) Type() MessageType { return TypePipelineUpdate }
func (DocumentUpdate) Type() MessageType { return TypeDocument }
func (ChatMessage) Type() MessageType    { return TypeChatMessage }

type wireMessage struct {
	Type          MessageType `json:"type"`
	ApplicationID string      `json:"applicationId,omitempty"`
	Msg           string      `json:"msg,omitempty"`
}

// Encode renders a message as the JSON object clients receive.
func Encode(m Message) ([]byte, error) {
	wire := wireMessage{Type: m.Type()}
	switch v := m.(type) {
	case Ping:
	case PipelineUpdate:
		wire.ApplicationID = v.ApplicationID
	case DocumentUpdate:
		wire.ApplicationID = v.ApplicationID
	case ChatMessage:
		wire.ApplicationID = v.ApplicationID
		wire.Msg = v.Msg
	default:
		return nil, fmt.Errorf("unsupported message type %T", m)
	}
	return json.Marshal(wire)
}

// Decode parses a server to client message.
func Decode(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	switch wire.Type {
	case TypePing:
		return Ping{}, nil
	case TypePipelineUpdate:
		return PipelineUpdate{ApplicationID: wire.ApplicationID}, nil
	case TypeDocument:
		return DocumentUpdate{ApplicationID: wire.ApplicationID}, nil
	case TypeChatMessage:
		return ChatMessage{ApplicationID: wire.ApplicationID, Msg: wire.Msg}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", wire.Type)
	}
}

type controlMessage struct {
	Type          MessageType `json:"type"`
	ApplicationID string      `json:"applicationId"`
}
