// Package protocol defines the websocket messages of the upload-ready event stream.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeUploadReady   MessageType = "upload_ready"
	TypeUploadPending MessageType = "upload_pending"
	TypeWatchExpired  MessageType = "watch_expired"
	TypeErrorEvent    MessageType = "error_event"
)

// ActionCheck asks the server to look at the relay again right now.
const ActionCheck = "check"

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type UploadReady struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	ContentType string      `json:"content_type"`
	Bytes       int         `json:"bytes"`
}

type UploadPending struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type WatchExpired struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
