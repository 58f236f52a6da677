package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants on the dev chat console.
type MessageType string

const (
	TypeClientMessage  MessageType = "client_message"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientMessage is an inbound chat line from the console. UserKey stands in
// for the sender phone number the production webhook would carry.
type ClientMessage struct {
	Type    MessageType `json:"type"`
	UserKey string      `json:"user_key"`
	Body    string      `json:"body"`
	TSMs    int64       `json:"ts_ms"`
}

// AssistantReply carries the dispatcher's reply back to the console.
type AssistantReply struct {
	Type      MessageType `json:"type"`
	UserKey   string      `json:"user_key"`
	MessageID string      `json:"message_id"`
	Body      string      `json:"body"`
	TSMs      int64       `json:"ts_ms"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type != TypeClientMessage {
		return ClientMessage{}, ErrUnsupportedType
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, err
	}
	if msg.UserKey == "" || msg.Body == "" {
		return ClientMessage{}, errors.New("invalid client_message")
	}
	return msg, nil
}
