package protocol

import "encoding/json"

// MessageType 消息类型标签
type MessageType string

const (
	TypeJoinRequest       MessageType = "join_request"
	TypeJoinResponse      MessageType = "join_response"
	TypeReconnectRequest  MessageType = "reconnect_request"
	TypeReconnectResponse MessageType = "reconnect_response"
	TypeInputReport       MessageType = "input_report"
	TypeSnapshotConfirm   MessageType = "snapshot_confirm"
	TypePositionReport    MessageType = "position_report"
	TypeFinishNotice      MessageType = "finish_notice"
	TypePing              MessageType = "ping"
	TypePong              MessageType = "pong"
	TypePlayerJoin        MessageType = "player_join"
	TypePlayerLeave       MessageType = "player_leave"
	TypeRaceStart         MessageType = "race_start"
	TypeRaceOver          MessageType = "race_over"
)

// Packet 消息信封：类型标签 + 按类型解释的负载
// 低延迟通道和可靠回退通道承载同一种信封，重复投递靠接收侧去重
type Packet struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TrackPointMsg 赛道参考线点（握手时下发）
type TrackPointMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// KartStateMsg 车辆物理状态的线上形态
// 包含重放所需的全部瞬态字段：权威快照要能作为重放基态使用
type KartStateMsg struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z,omitempty"`
	Yaw float64 `json:"yaw"`

	Speed      float64 `json:"speed"`
	VelX       float64 `json:"velX,omitempty"`
	VelY       float64 `json:"velY,omitempty"`
	SteerAngle float64 `json:"steerAngle,omitempty"`

	Lap         int     `json:"lap"`
	LapProgress float64 `json:"lapProgress"`

	Drifting     bool    `json:"drifting,omitempty"`
	DriftDir     float64 `json:"driftDir,omitempty"`
	DriftTimer   float64 `json:"driftTimer,omitempty"`
	DriftLockYaw float64 `json:"driftLockYaw,omitempty"`

	BoostFactor float64 `json:"boostFactor,omitempty"`
	BoostTimer  float64 `json:"boostTimer,omitempty"`
	Invincible  bool    `json:"invincible,omitempty"`
	StarTimer   float64 `json:"starTimer,omitempty"`
	OilSlip     bool    `json:"oilSlip,omitempty"`
	OilTimer    float64 `json:"oilTimer,omitempty"`
	SpinOut     bool    `json:"spinOut,omitempty"`
	SpinTimer   float64 `json:"spinTimer,omitempty"`
}

// JoinRequest 加入请求
type JoinRequest struct {
	PlayerName string `json:"playerName"`
	KartColor  string `json:"kartColor,omitempty"`
	RaceID     string `json:"raceId,omitempty"` // 空串表示加入默认会话
}

// JoinResponse 加入响应
type JoinResponse struct {
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	PlayerID     int32           `json:"playerId"`
	SessionToken string          `json:"sessionToken,omitempty"`
	RaceID       string          `json:"raceId,omitempty"`
	TotalLaps    int             `json:"totalLaps"`
	TPS          int             `json:"tps"`
	Track        []TrackPointMsg `json:"track,omitempty"`
	SpawnX       float64         `json:"spawnX"`
	SpawnY       float64         `json:"spawnY"`
	SpawnYaw     float64         `json:"spawnYaw"`
}

// ReconnectRequest 重连请求（携带会话令牌）
type ReconnectRequest struct {
	SessionToken string `json:"sessionToken"`
}

// ReconnectResponse 重连响应
type ReconnectResponse struct {
	Success      bool         `json:"success"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	PlayerID     int32        `json:"playerId,omitempty"`
	LastFrame    int32        `json:"lastFrame,omitempty"`
	State        KartStateMsg `json:"state,omitempty"`
}

// InputFrameMsg 一帧输入的线上形态
type InputFrameMsg struct {
	Frame    int32   `json:"frame"`
	Throttle float64 `json:"throttle"`
	Steer    float64 `json:"steer"`
	Brake    bool    `json:"brake,omitempty"`
	Drift    bool    `json:"drift,omitempty"`
	UseItem  bool    `json:"useItem,omitempty"`
	SentAt   int64   `json:"sentAt,omitempty"`
}

// InputReport 本地玩家向权威端上报的输入（滑动窗口批量，丢包自愈）
type InputReport struct {
	Seq    int32           `json:"seq"`
	Inputs []InputFrameMsg `json:"inputs"`
}

// SnapshotConfirm 权威端回发的快照确认：
// 最后处理到的输入帧号 + 该帧的权威状态，预测引擎据此和解
type SnapshotConfirm struct {
	LastProcessedFrame int32        `json:"lastProcessedFrame"`
	State              KartStateMsg `json:"state"`
	ServerTime         int64        `json:"serverTime"`
}

// PositionReport 周期性位置报告（每个实体的权威端按固定节奏发出）
type PositionReport struct {
	PlayerID    int32      `json:"playerId"`
	Position    [3]float64 `json:"position"`
	Rotation    float64    `json:"rotation"`
	Speed       float64    `json:"speed"`
	Lap         int        `json:"lap"`
	LapProgress float64    `json:"lapProgress"`
	ServerTime  int64      `json:"serverTime"`
	Sequence    int32      `json:"sequence,omitempty"`
	Velocity    *[2]float64 `json:"velocity,omitempty"`
}

// FinishNotice 完赛通知：绕过常规进度管线直达排名聚合器
type FinishNotice struct {
	PlayerID   int32 `json:"playerId"`
	FinishTime int64 `json:"finishTime"`
}

// Ping / Pong 心跳与 RTT 测量
type Ping struct {
	ClientTime int64 `json:"clientTime"`
}

type Pong struct {
	ClientTime  int64 `json:"clientTime"`
	ServerTime  int64 `json:"serverTime"`
	ServerFrame int32 `json:"serverFrame"`
}

// PlayerJoin 广播：新玩家加入
type PlayerJoin struct {
	PlayerID  int32  `json:"playerId"`
	Name      string `json:"name"`
	KartColor string `json:"kartColor,omitempty"`
}

// PlayerLeave 广播：玩家离开
type PlayerLeave struct {
	PlayerID int32 `json:"playerId"`
}

// RaceStart 比赛开始
type RaceStart struct {
	StartAt   int64 `json:"startAt"` // 起跑时刻（Unix 毫秒）
	TotalLaps int   `json:"totalLaps"`
}

// StandingMsg 一条排名的线上形态
type StandingMsg struct {
	PlayerID   int32  `json:"playerId"`
	Name       string `json:"name,omitempty"`
	Rank       int    `json:"rank"`
	Lap        int    `json:"lap"`
	Finished   bool   `json:"finished,omitempty"`
	FinishTime int64  `json:"finishTime,omitempty"`
}

// RaceOver 比赛结束（附最终排名）
type RaceOver struct {
	Standings []StandingMsg `json:"standings"`
}
