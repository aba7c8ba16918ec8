package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":"abc123","action":"check"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionCheck || control.SessionID != "abc123" {
		t.Fatalf("unexpected control: %+v", control)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsMissingAction(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_control","session_id":"s1"}`))
	if err == nil {
		t.Fatalf("ParseClientMessage() expected error for missing action")
	}
}

func TestParseClientMessageRejectsGarbage(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatalf("ParseClientMessage() expected error for invalid JSON")
	}
}
