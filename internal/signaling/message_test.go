package signaling

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	t.Run("join-room", func(t *testing.T) {
		msg, err := ParseClientMessage([]byte(`{"type":"join-room","roomId":"abc","name":"Ada"}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if msg.Type != TypeJoinRoom || msg.RoomID != "abc" || msg.Name != "Ada" {
			t.Fatalf("msg=%+v", msg)
		}
	})

	t.Run("join-room without name is anonymous", func(t *testing.T) {
		msg, err := ParseClientMessage([]byte(`{"type":"join-room","roomId":"abc"}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if msg.Name != "" {
			t.Fatalf("name=%q, want empty", msg.Name)
		}
	})

	t.Run("offer keeps payload verbatim", func(t *testing.T) {
		raw := `{"type":"offer","roomId":"abc","offer":{"type":"offer","sdp":"v=0\r\n"}}`
		msg, err := ParseClientMessage([]byte(raw))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		var inner struct {
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(msg.Offer, &inner); err != nil {
			t.Fatalf("unmarshal offer: %v", err)
		}
		if inner.SDP != "v=0\r\n" {
			t.Fatalf("sdp=%q", inner.SDP)
		}
	})

	t.Run("relay without payload is rejected", func(t *testing.T) {
		cases := []string{
			`{"type":"offer","roomId":"abc"}`,
			`{"type":"answer","roomId":"abc"}`,
			`{"type":"ice-candidate","roomId":"abc"}`,
		}
		for _, c := range cases {
			if _, err := ParseClientMessage([]byte(c)); err == nil {
				t.Fatalf("expected error for %s", c)
			}
		}
	})

	t.Run("missing roomId is rejected", func(t *testing.T) {
		cases := []string{
			`{"type":"join-room","name":"Ada"}`,
			`{"type":"leave-room"}`,
			`{"type":"offer","offer":{}}`,
		}
		for _, c := range cases {
			if _, err := ParseClientMessage([]byte(c)); err == nil {
				t.Fatalf("expected error for %s", c)
			}
		}
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		_, err := ParseClientMessage([]byte(`{"type":"chat","roomId":"abc"}`))
		if err == nil || !strings.Contains(err.Error(), "unknown message type") {
			t.Fatalf("err=%v, want unknown message type", err)
		}
	})

	t.Run("invalid json is rejected", func(t *testing.T) {
		if _, err := ParseClientMessage([]byte(`{`)); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestRelayEventOmitsUnusedPayloads(t *testing.T) {
	data, err := json.Marshal(relayEvent{
		Type:   TypeAnswer,
		RoomID: "abc",
		From:   "conn-1",
		Answer: json.RawMessage(`{"type":"answer"}`),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(data)
	if strings.Contains(text, `"offer"`) || strings.Contains(text, `"candidate"`) {
		t.Fatalf("unexpected empty payload fields in %s", text)
	}
	if !strings.Contains(text, `"from":"conn-1"`) || !strings.Contains(text, `"roomId":"abc"`) {
		t.Fatalf("missing envelope fields in %s", text)
	}
}
