package protocol

import (
	"testing"
)

func TestParseClient(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"identify", `{"type":"identify","name":"ada","color":"#EEB9B9"}`, false},
		{"identify missing name", `{"type":"identify","color":"#EEB9B9"}`, true},
		{"createRoom", `{"type":"createRoom","roomCode":"ABC123","puzzleId":"p1"}`, false},
		{"createRoom missing code", `{"type":"createRoom","puzzleId":"p1"}`, true},
		{"joinRoom", `{"type":"joinRoom","roomCode":"ABC123"}`, false},
		{"joinRoom missing code", `{"type":"joinRoom"}`, true},
		{"selectUpdate", `{"type":"selectUpdate","row":2,"col":3}`, false},
		{"selectUpdate negative", `{"type":"selectUpdate","row":-1,"col":0}`, true},
		{"valueUpdate", `{"type":"valueUpdate","values":[["A",""],["",""]]}`, false},
		{"valueUpdate empty", `{"type":"valueUpdate"}`, true},
		{"valueUpdate ragged", `{"type":"valueUpdate","values":[["A",""],[""]]}`, true},
		{"statusReply", `{"type":"statusReply","targetId":"t1","status":{"puzzleId":"p1","boardSnapshot":[[""]],"peerCells":[],"peerColors":[],"peerNames":[]}}`, false},
		{"statusReply missing target", `{"type":"statusReply","status":{"puzzleId":"p1"}}`, true},
		{"unknown type", `{"type":"nonsense"}`, true},
		{"missing type", `{"name":"ada"}`, true},
		{"bad json", `{`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseClient([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && m.Type == "" {
				t.Error("Parsed message should carry its type")
			}
		})
	}
}

func TestParseServer(t *testing.T) {
	m, err := ParseServer([]byte(`{"type":"selectionChanged","row":1,"col":2,"senderId":"abc"}`))
	if err != nil {
		t.Fatalf("ParseServer() error: %v", err)
	}
	if m.Type != TypeSelectionChanged || m.Row != 1 || m.Col != 2 || m.SenderID != "abc" {
		t.Errorf("ParseServer() = %+v", m)
	}

	if _, err := ParseServer([]byte(`{}`)); err == nil {
		t.Error("ParseServer() should reject a message without type")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	out := ServerMessage{
		Type:   TypeStatusRequested,
		ID:     "joiner-1",
		Reason: "",
	}

	in, err := ParseServer(Encode(out))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if in.Type != TypeStatusRequested || in.ID != "joiner-1" {
		t.Errorf("round trip = %+v", in)
	}
}
