package http

import (
	"encoding/json"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

// inboundToCommand maps a client frame to a core command. A non-nil proto.Error
// is reported to the client and the frame is otherwise ignored.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeSeen:
		var seen proto.SeenData
		if err := json.Unmarshal(inbound.Data, &seen); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid seen payload"}
		}
		if seen.MessageID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}
		}
		return &core.Command{Kind: core.CommandSeenAck, MessageID: seen.MessageID}, nil
	case proto.InboundTypeOpen:
		var open proto.OpenData
		if err := json.Unmarshal(inbound.Data, &open); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid open payload"}
		}
		if open.Peer == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "peer is required"}
		}
		return &core.Command{Kind: core.CommandOpenConversation, Peer: open.Peer}, nil
	case proto.InboundTypeClose:
		return &core.Command{Kind: core.CommandCloseConversation}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidFormat, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineUsers:
		users := event.OnlineUsers
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineUsers,
			Data:  proto.EventOnline{Users: users},
		}
	case core.EventNewMessage:
		m := event.Message
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data: proto.EventMessage{
				ID:          m.ID,
				SenderID:    m.SenderID,
				RecipientID: m.RecipientID,
				Text:        m.Text,
				Image:       m.Image,
				Seen:        m.Seen,
				TS:          m.CreatedAt.Unix(),
			},
		}
	case core.EventUnseenCounts:
		counts := event.Unseen
		if counts == nil {
			counts = map[string]int{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUnseenCounts,
			Data:  proto.EventUnseen{Counts: counts},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
