package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

func TestInboundToCommand(t *testing.T) {
	cases := []struct {
		name     string
		in       proto.Inbound
		wantKind core.CommandKind
		wantErr  string
	}{
		{"seen", proto.Inbound{Type: "seen", Data: json.RawMessage(`{"message_id":7}`)}, core.CommandSeenAck, ""},
		{"seen without id", proto.Inbound{Type: "seen", Data: json.RawMessage(`{}`)}, 0, core.ErrCodeBadRequest},
		{"seen bad json", proto.Inbound{Type: "seen", Data: json.RawMessage(`[`)}, 0, core.ErrCodeBadRequest},
		{"open", proto.Inbound{Type: "open", Data: json.RawMessage(`{"peer":"bob"}`)}, core.CommandOpenConversation, ""},
		{"open without peer", proto.Inbound{Type: "open", Data: json.RawMessage(`{"peer":""}`)}, 0, core.ErrCodeBadRequest},
		{"close", proto.Inbound{Type: "close"}, core.CommandCloseConversation, ""},
		{"unknown", proto.Inbound{Type: "msg"}, 0, core.ErrCodeInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, perr := inboundToCommand(tc.in)
			if tc.wantErr != "" {
				if perr == nil || perr.Code != tc.wantErr {
					t.Fatalf("expected %s error, got cmd=%+v err=%+v", tc.wantErr, cmd, perr)
				}
				return
			}
			if perr != nil || cmd == nil || cmd.Kind != tc.wantKind {
				t.Fatalf("unexpected result cmd=%+v err=%+v", cmd, perr)
			}
		})
	}
}

func TestOutboundFromEvent(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventOnlineUsers})
	if out.Event != proto.EventOnlineUsers {
		t.Fatalf("unexpected event %q", out.Event)
	}
	if data, _ := json.Marshal(out.Data); string(data) != `{"users":[]}` {
		t.Fatalf("empty online set should encode as array, got %s", data)
	}

	created := time.Unix(1700000000, 0)
	out = outboundFromEvent(&core.Event{Kind: core.EventNewMessage, Message: store.Message{
		ID: 3, SenderID: "a", RecipientID: "b", Text: "hi", Seen: true, CreatedAt: created,
	}})
	msg, ok := out.Data.(proto.EventMessage)
	if !ok || msg.ID != 3 || !msg.Seen || msg.TS != created.Unix() {
		t.Fatalf("unexpected message payload %+v", out.Data)
	}

	out = outboundFromEvent(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: "x", Message: "y"}})
	if out.Type != proto.OutboundTypeError || out.Error.Code != "x" {
		t.Fatalf("unexpected error outbound %+v", out)
	}
}
