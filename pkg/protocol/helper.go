package protocol

import (
	"encoding/json"
	"fmt"
)

// ========== 辅助构造方法 ==========

func newPacket(t MessageType, payload any) (*Packet, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Packet{Type: t, Payload: data}, nil
}

// NewJoinRequestPacket 构造加入请求消息包
func NewJoinRequestPacket(playerName, kartColor, raceID string) (*Packet, error) {
	return newPacket(TypeJoinRequest, &JoinRequest{
		PlayerName: playerName,
		KartColor:  kartColor,
		RaceID:     raceID,
	})
}

// NewJoinResponsePacket 构造加入响应消息包
func NewJoinResponsePacket(resp *JoinResponse) (*Packet, error) {
	return newPacket(TypeJoinResponse, resp)
}

// NewReconnectRequestPacket 构造重连请求消息包
func NewReconnectRequestPacket(sessionToken string) (*Packet, error) {
	return newPacket(TypeReconnectRequest, &ReconnectRequest{SessionToken: sessionToken})
}

// NewReconnectResponsePacket 构造重连响应消息包
func NewReconnectResponsePacket(resp *ReconnectResponse) (*Packet, error) {
	return newPacket(TypeReconnectResponse, resp)
}

// NewInputReportPacket 构造批量输入上报消息包
func NewInputReportPacket(seq int32, inputs []InputFrameMsg) (*Packet, error) {
	return newPacket(TypeInputReport, &InputReport{Seq: seq, Inputs: inputs})
}

// NewSnapshotConfirmPacket 构造快照确认消息包
func NewSnapshotConfirmPacket(lastFrame int32, state KartStateMsg, serverTime int64) (*Packet, error) {
	return newPacket(TypeSnapshotConfirm, &SnapshotConfirm{
		LastProcessedFrame: lastFrame,
		State:              state,
		ServerTime:         serverTime,
	})
}

// NewPositionReportPacket 构造位置报告消息包
func NewPositionReportPacket(report *PositionReport) (*Packet, error) {
	return newPacket(TypePositionReport, report)
}

// NewFinishNoticePacket 构造完赛通知消息包
func NewFinishNoticePacket(playerID int32, finishTime int64) (*Packet, error) {
	return newPacket(TypeFinishNotice, &FinishNotice{PlayerID: playerID, FinishTime: finishTime})
}

// NewPingPacket 构造心跳消息包
func NewPingPacket(clientTime int64) (*Packet, error) {
	return newPacket(TypePing, &Ping{ClientTime: clientTime})
}

// NewPongPacket 构造心跳响应消息包
func NewPongPacket(clientTime, serverTime int64, serverFrame int32) (*Packet, error) {
	return newPacket(TypePong, &Pong{
		ClientTime:  clientTime,
		ServerTime:  serverTime,
		ServerFrame: serverFrame,
	})
}

// NewPlayerJoinPacket 构造玩家加入广播消息包
func NewPlayerJoinPacket(playerID int32, name, kartColor string) (*Packet, error) {
	return newPacket(TypePlayerJoin, &PlayerJoin{PlayerID: playerID, Name: name, KartColor: kartColor})
}

// NewPlayerLeavePacket 构造玩家离开广播消息包
func NewPlayerLeavePacket(playerID int32) (*Packet, error) {
	return newPacket(TypePlayerLeave, &PlayerLeave{PlayerID: playerID})
}

// NewRaceStartPacket 构造比赛开始消息包
func NewRaceStartPacket(startAt int64, totalLaps int) (*Packet, error) {
	return newPacket(TypeRaceStart, &RaceStart{StartAt: startAt, TotalLaps: totalLaps})
}

// NewRaceOverPacket 构造比赛结束消息包
func NewRaceOverPacket(standings []StandingMsg) (*Packet, error) {
	return newPacket(TypeRaceOver, &RaceOver{Standings: standings})
}

// ========== 序列化与反序列化 ==========

// MarshalPacket 将 Packet 对象转换为字节切片
func MarshalPacket(pkt *Packet) ([]byte, error) {
	return json.Marshal(pkt)
}

// UnmarshalPacket 将字节切片转换为 Packet 对象
func UnmarshalPacket(data []byte) (*Packet, error) {
	pkt := &Packet{}
	if err := json.Unmarshal(data, pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

// ========== 消息解析辅助 ==========

func parsePayload[T any](pkt *Packet, want MessageType) (*T, error) {
	if pkt.Type != want {
		return nil, fmt.Errorf("消息类型不匹配: 期望 %s, 实际 %s", want, pkt.Type)
	}
	out := new(T)
	if err := json.Unmarshal(pkt.Payload, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseJoinRequest 从 Packet 中解析 JoinRequest
func ParseJoinRequest(pkt *Packet) (*JoinRequest, error) {
	return parsePayload[JoinRequest](pkt, TypeJoinRequest)
}

// ParseJoinResponse 从 Packet 中解析 JoinResponse
func ParseJoinResponse(pkt *Packet) (*JoinResponse, error) {
	return parsePayload[JoinResponse](pkt, TypeJoinResponse)
}

// ParseReconnectRequest 从 Packet 中解析 ReconnectRequest
func ParseReconnectRequest(pkt *Packet) (*ReconnectRequest, error) {
	return parsePayload[ReconnectRequest](pkt, TypeReconnectRequest)
}

// ParseReconnectResponse 从 Packet 中解析 ReconnectResponse
func ParseReconnectResponse(pkt *Packet) (*ReconnectResponse, error) {
	return parsePayload[ReconnectResponse](pkt, TypeReconnectResponse)
}

// ParseInputReport 从 Packet 中解析 InputReport
func ParseInputReport(pkt *Packet) (*InputReport, error) {
	return parsePayload[InputReport](pkt, TypeInputReport)
}

// ParseSnapshotConfirm 从 Packet 中解析 SnapshotConfirm
func ParseSnapshotConfirm(pkt *Packet) (*SnapshotConfirm, error) {
	return parsePayload[SnapshotConfirm](pkt, TypeSnapshotConfirm)
}

// ParsePositionReport 从 Packet 中解析 PositionReport
func ParsePositionReport(pkt *Packet) (*PositionReport, error) {
	return parsePayload[PositionReport](pkt, TypePositionReport)
}

// ParseFinishNotice 从 Packet 中解析 FinishNotice
func ParseFinishNotice(pkt *Packet) (*FinishNotice, error) {
	return parsePayload[FinishNotice](pkt, TypeFinishNotice)
}

// ParsePing 从 Packet 中解析 Ping
func ParsePing(pkt *Packet) (*Ping, error) {
	return parsePayload[Ping](pkt, TypePing)
}

// ParsePong 从 Packet 中解析 Pong
func ParsePong(pkt *Packet) (*Pong, error) {
	return parsePayload[Pong](pkt, TypePong)
}

// ParsePlayerJoin 从 Packet 中解析 PlayerJoin
func ParsePlayerJoin(pkt *Packet) (*PlayerJoin, error) {
	return parsePayload[PlayerJoin](pkt, TypePlayerJoin)
}

// ParsePlayerLeave 从 Packet 中解析 PlayerLeave
func ParsePlayerLeave(pkt *Packet) (*PlayerLeave, error) {
	return parsePayload[PlayerLeave](pkt, TypePlayerLeave)
}

// ParseRaceStart 从 Packet 中解析 RaceStart
func ParseRaceStart(pkt *Packet) (*RaceStart, error) {
	return parsePayload[RaceStart](pkt, TypeRaceStart)
}

// ParseRaceOver 从 Packet 中解析 RaceOver
func ParseRaceOver(pkt *Packet) (*RaceOver, error) {
	return parsePayload[RaceOver](pkt, TypeRaceOver)
}
