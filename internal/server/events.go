package server

import "github.com/erlancarreira/nitrogame-sub001/pkg/protocol"

// EventKind 服务器事件类型
type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoin
	EventInput
	EventPing
	EventPong
	EventReconnect
	EventFinish
)

// JoinEvent 加入请求
type JoinEvent struct {
	PlayerName string
	KartColor  string
	RaceID     string // 空串表示自动分配到默认会话
}

// InputEvent 一批输入上报
type InputEvent struct {
	PlayerID int32
	RaceID   string
	Seq      int32
	Inputs   []protocol.InputFrameMsg
}

// PingEvent 客户端心跳
type PingEvent struct {
	ClientTime int64
}

// PongEvent 客户端对服务器心跳的回应
type PongEvent struct {
	ClientTime  int64
	ServerTime  int64
	ServerFrame int32
}

// ReconnectEvent 重连请求
type ReconnectEvent struct {
	SessionToken string
}

// FinishEvent 完赛申报（受害者申报制权威模型）
type FinishEvent struct {
	PlayerID   int32
	FinishTime int64
}

// ServerEvent 收包解码后的封闭联合，按 Kind 分发
type ServerEvent struct {
	Kind      EventKind
	Join      *JoinEvent
	Input     *InputEvent
	Ping      *PingEvent
	Pong      *PongEvent
	Reconnect *ReconnectEvent
	Finish    *FinishEvent
}
