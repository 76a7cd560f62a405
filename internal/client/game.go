package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
	"github.com/erlancarreira/nitrogame-sub001/pkg/race"
)

// 排名重算周期（毫秒）：排序不必每帧做
const rankEvalIntervalMs = 500

// LocalInput 本帧采集到的原始输入（采集方式在核心之外）
type LocalInput struct {
	Throttle float64
	Steer    float64
	Brake    bool
	Drift    bool
	UseItem  bool
}

// FrameOutput 一次客户端帧推进的产出，交给渲染侧消费
type FrameOutput struct {
	Local     core.KartState
	Remotes   map[int32]Pose
	Standings []race.Standing
	RaceOver  bool
}

// RaceClient 联机比赛客户端
// 把四个核心组件接到一条单线程时间轴上：
// 本地输入 → 物理核心 → 预测引擎 → 渲染状态；
// 网络报文 → 快照缓冲 → 插值位姿 → 进度追踪 → 排名聚合
type RaceClient struct {
	log     *zap.SugaredLogger
	network *NetworkClient

	track     *core.Track
	session   *race.Session
	remotes   *RemoteRegistry
	predictor *Predictor

	playerID   int32
	playerName string
	totalLaps  int

	started      bool
	finished     bool
	raceOver     bool
	standings    []race.Standing
	lastRankEval int64
}

// NewRaceClient 用已完成握手的网络客户端组装比赛客户端
func NewRaceClient(network *NetworkClient, playerName string, log *zap.SugaredLogger) *RaceClient {
	info := network.JoinInfo()

	track, err := core.NewTrack(protocol.MsgToTrackPoints(info.Track), info.TotalLaps)
	if err != nil {
		// 退化赛道：继续开车但进度追踪停用（报告零进度，不产生 NaN 名次）
		log.Warnw("赛道参考线校验失败，进度追踪停用", "err", err)
		track = nil
	}

	session := race.NewSession(track, race.DefaultTrackerConfig(info.TotalLaps))
	session.AddRacer(network.PlayerID(), playerName, time.Now())

	initial := core.NewKartState(info.SpawnX, info.SpawnY, info.SpawnYaw)
	predictor := NewPredictor(initial, network, DefaultPredictorConfig())

	return &RaceClient{
		log:        log,
		network:    network,
		track:      track,
		session:    session,
		remotes:    NewRemoteRegistry(),
		predictor:  predictor,
		playerID:   network.PlayerID(),
		playerName: playerName,
		totalLaps:  info.TotalLaps,
	}
}

// NewOfflineRaceClient 离线模式：纯本地模拟，无缓冲无上报
func NewOfflineRaceClient(track *core.Track, totalLaps int, log *zap.SugaredLogger) *RaceClient {
	session := race.NewSession(track, race.DefaultTrackerConfig(totalLaps))
	session.AddRacer(0, "local", time.Now())

	var initial core.KartState
	if track != nil {
		x, y, yaw := track.Spawn()
		initial = core.NewKartState(x, y, yaw)
	} else {
		initial = core.NewKartState(0, 0, 0)
	}

	return &RaceClient{
		log:       log,
		track:     track,
		session:   session,
		remotes:   NewRemoteRegistry(),
		predictor: NewPredictor(initial, nil, DefaultPredictorConfig()),
		totalLaps: totalLaps,
		started:   true,
	}
}

// Predictor 预测引擎（测试与诊断入口）
func (rc *RaceClient) Predictor() *Predictor { return rc.predictor }

// Session 比赛会话注册表
func (rc *RaceClient) Session() *race.Session { return rc.session }

// Started 比赛是否已开始
func (rc *RaceClient) Started() bool { return rc.started }

// Tick 推进一帧：消费网络事件、预测本地车、更新进度与排名
// 全部组件跑在这一条顺序时间轴上，没有共享可变状态的并发访问
func (rc *RaceClient) Tick(in LocalInput, now time.Time) FrameOutput {
	nowMs := now.UnixMilli()

	if rc.network != nil {
		rc.drainEvents(now)
		rc.drainConfirms()
		rc.drainPositionReports(now, nowMs)
		rc.drainFinishNotices()
	}

	// 本地车：输入立即生效（预测），无感知延迟
	var state core.KartState
	if rc.started && !rc.finished {
		state = rc.predictor.ProcessInput(in.Throttle, in.Steer, in.Brake, in.Drift, in.UseItem, nowMs)
	} else {
		state = rc.predictor.State()
	}

	// 本地车进度走同一套追踪管线
	rc.session.Touch(rc.playerID, now)
	rc.session.UpdatePosition(rc.playerID, state.X, state.Y, state.Speed, now)
	if rs := rc.session.Racer(rc.playerID); rs != nil {
		if rs.Finished && !rc.finished {
			rc.finished = true
			rc.log.Infow("本地完赛", "finishTime", rs.FinishTime)
			if rc.network != nil {
				rc.network.SendFinishNotice(rs.FinishTime)
			}
		}
	}

	// 静默超时清理：远端车和参赛者簿记同步移除
	for _, id := range rc.remotes.Purge(nowMs) {
		rc.session.RemoveRacer(id)
		rc.log.Infow("远端车静默超时移除", "playerID", id)
	}

	// 排名周期性重算（带迟滞过滤）
	if nowMs-rc.lastRankEval >= rankEvalIntervalMs {
		rc.lastRankEval = nowMs
		rc.standings = rc.session.Standings()
		if rc.network != nil {
			rc.adjustInterpolationDelay()
		}
	}

	return FrameOutput{
		Local:     state,
		Remotes:   rc.remotes.Poses(nowMs),
		Standings: rc.standings,
		RaceOver:  rc.raceOver,
	}
}

// drainConfirms 消费全部待处理的快照确认
// 过期判定在预测引擎内部做，这里只负责搬运
func (rc *RaceClient) drainConfirms() {
	for {
		confirm := rc.network.ReceiveConfirm()
		if confirm == nil {
			return
		}
		auth := protocol.MsgToCoreKart(&confirm.State)
		rc.predictor.ProcessSnapshot(auth, confirm.LastProcessedFrame)
	}
}

// drainPositionReports 消费全部待处理的位置报告
func (rc *RaceClient) drainPositionReports(now time.Time, nowMs int64) {
	for {
		report := rc.network.ReceivePositionReport()
		if report == nil {
			return
		}
		if report.PlayerID == rc.playerID {
			// 自己的报告由快照确认通道处理
			continue
		}
		rc.remotes.ApplyReport(report, nowMs)
		if rc.session.Racer(report.PlayerID) == nil {
			rc.session.AddRacer(report.PlayerID, "", now)
		}
		rc.session.UpdatePosition(report.PlayerID, report.Position[0], report.Position[1], report.Speed, now)
	}
}

// drainFinishNotices 完赛通知直达排名聚合器，绕过常规进度管线
func (rc *RaceClient) drainFinishNotices() {
	for {
		notice := rc.network.ReceiveFinishNotice()
		if notice == nil {
			return
		}
		rc.session.MarkFinished(notice.PlayerID, notice.FinishTime)
	}
}

// drainEvents 消费会话事件
func (rc *RaceClient) drainEvents(now time.Time) {
	for {
		ev, ok := rc.network.ReceiveEvent()
		if !ok {
			return
		}
		switch ev.Kind {
		case EventPlayerJoin:
			rc.session.AddRacer(ev.PlayerJoin.PlayerID, ev.PlayerJoin.Name, now)
			rc.log.Infow("玩家加入", "playerID", ev.PlayerJoin.PlayerID, "name", ev.PlayerJoin.Name)
		case EventPlayerLeave:
			rc.session.RemoveRacer(ev.PlayerLeave.PlayerID)
			rc.remotes.Remove(ev.PlayerLeave.PlayerID)
			rc.log.Infow("玩家离开", "playerID", ev.PlayerLeave.PlayerID)
		case EventRaceStart:
			rc.started = true
			rc.log.Infow("比赛开始", "totalLaps", ev.RaceStart.TotalLaps)
		case EventRaceOver:
			rc.raceOver = true
			rc.applyFinalStandings(ev.RaceOver)
			rc.log.Infow("比赛结束")
		}
	}
}

// applyFinalStandings 用服务器的最终排名覆盖本地聚合结果
func (rc *RaceClient) applyFinalStandings(over *protocol.RaceOver) {
	out := make([]race.Standing, 0, len(over.Standings))
	for _, s := range over.Standings {
		out = append(out, race.Standing{
			ID:         s.PlayerID,
			Name:       s.Name,
			Rank:       s.Rank,
			Lap:        s.Lap,
			Finished:   s.Finished,
			FinishTime: s.FinishTime,
		})
	}
	rc.standings = out
}

// adjustInterpolationDelay 按实测 RTT 调整远端插值延迟
// 延迟抬高到能稳定夹住渲染时刻为止，尽量不靠外推
func (rc *RaceClient) adjustInterpolationDelay() {
	rtt := rc.network.RTT()
	if rtt <= 0 {
		return
	}
	delay := DefaultInterpolationDelayMs + rtt/2
	rc.remotes.SetInterpolationDelay(delay)
}
