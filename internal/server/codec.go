package server

import (
	"fmt"

	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

// DecodePacket 解析服务器收到的数据包
func DecodePacket(data []byte) (*ServerEvent, error) {
	pkt, err := protocol.UnmarshalPacket(data)
	if err != nil {
		return nil, fmt.Errorf("解析包失败: %w", err)
	}

	switch pkt.Type {
	case protocol.TypeJoinRequest:
		req, err := protocol.ParseJoinRequest(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind: EventJoin,
			Join: &JoinEvent{
				PlayerName: req.PlayerName,
				KartColor:  req.KartColor,
				RaceID:     req.RaceID,
			},
		}, nil

	case protocol.TypeInputReport:
		report, err := protocol.ParseInputReport(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind: EventInput,
			Input: &InputEvent{
				Seq:    report.Seq,
				Inputs: report.Inputs,
			},
		}, nil

	case protocol.TypePing:
		ping, err := protocol.ParsePing(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind: EventPing,
			Ping: &PingEvent{ClientTime: ping.ClientTime},
		}, nil

	case protocol.TypePong:
		pong, err := protocol.ParsePong(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind: EventPong,
			Pong: &PongEvent{ClientTime: pong.ClientTime, ServerTime: pong.ServerTime, ServerFrame: pong.ServerFrame},
		}, nil

	case protocol.TypeReconnectRequest:
		req, err := protocol.ParseReconnectRequest(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind:      EventReconnect,
			Reconnect: &ReconnectEvent{SessionToken: req.SessionToken},
		}, nil

	case protocol.TypeFinishNotice:
		notice, err := protocol.ParseFinishNotice(pkt)
		if err != nil {
			return nil, err
		}
		return &ServerEvent{
			Kind:   EventFinish,
			Finish: &FinishEvent{PlayerID: notice.PlayerID, FinishTime: notice.FinishTime},
		}, nil

	default:
		return &ServerEvent{Kind: EventUnknown}, nil
	}
}
