package server

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
	"github.com/erlancarreira/nitrogame-sub001/pkg/race"
)

const (
	MaxPlayers   = 8
	ServerTPS    = core.TPS
	TickDuration = time.Second / ServerTPS

	// 位置报告广播频率（Hz），与模拟帧率解耦
	PositionBroadcastHz = 20

	// 每 tick 最多补追的输入帧数（客户端网络抖动后的追帧上限）
	maxInputsPerTick = 3

	// 单个玩家的待处理输入上限，溢出丢最旧
	pendingInputCap = 180

	// 排名重算周期（帧）
	rankEvalFrames = 30

	countdownDuration = 3 * time.Second
	endingLinger      = 5 * time.Second
)

// RoomState 房间状态
type RoomState int

const (
	StateWaiting RoomState = iota
	StateCountdown
	StateRunning
	StateEnding
)

// playerSlot 房间内一个玩家的权威侧状态
// 服务器用与客户端相同的物理函数重演玩家输入，作为该车的权威模拟
type playerSlot struct {
	id    int32
	name  string
	color string
	sess  Session

	kart               core.KartState
	pending            []core.Input // 按帧号升序
	lastProcessedFrame int32
	finishAnnounced    bool
}

type joinRequest struct {
	sess   Session
	req    JoinEvent
	respCh chan error
}

type reconnectRequest struct {
	sess     Session
	playerID int32
	respCh   chan *protocol.ReconnectResponse
}

// Room 一场比赛
// 所有房间状态只在 Run 协程里访问；连接协程通过通道投递事件
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	id        string
	track     *core.Track
	totalLaps int
	session   *race.Session

	state   RoomState
	frameID int32
	startAt time.Time
	resetAt time.Time

	players      map[int32]*playerSlot
	playerCount  atomic.Int32
	nextPlayerID int32

	broadcastLimiter *rate.Limiter

	joinCh      chan joinRequest
	inputCh     chan *InputEvent
	leaveCh     chan int32
	finishCh    chan *FinishEvent
	reconnectCh chan reconnectRequest
}

// NewRoom 创建比赛房间
func NewRoom(parent context.Context, id string, track *core.Track, totalLaps int, log *zap.SugaredLogger) *Room {
	ctx, cancel := context.WithCancel(parent)

	return &Room{
		ctx:              ctx,
		cancel:           cancel,
		log:              log,
		id:               id,
		track:            track,
		totalLaps:        totalLaps,
		session:          race.NewSession(track, race.DefaultTrackerConfig(totalLaps)),
		state:            StateWaiting,
		players:          make(map[int32]*playerSlot),
		nextPlayerID:     1,
		broadcastLimiter: rate.NewLimiter(rate.Limit(PositionBroadcastHz), 1),
		joinCh:           make(chan joinRequest),
		inputCh:          make(chan *InputEvent, 256),
		leaveCh:          make(chan int32, 64),
		finishCh:         make(chan *FinishEvent, 64),
		reconnectCh:      make(chan reconnectRequest),
	}
}

// Run 房间主循环
func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	r.log.Infow("房间循环启动", "roomID", r.id, "tps", ServerTPS)

	for {
		select {
		case <-r.ctx.Done():
			r.closeAllConnections(false)
			r.log.Infow("房间循环停止", "roomID", r.id)
			return

		case req := <-r.joinCh:
			r.handleJoin(req)

		case ev := <-r.inputCh:
			r.handleInput(ev)

		case playerID := <-r.leaveCh:
			r.handleLeave(playerID)

		case ev := <-r.finishCh:
			r.handleFinish(ev)

		case req := <-r.reconnectCh:
			r.handleReconnect(req)

		case <-ticker.C:
			r.tick()
		}
	}
}

// Shutdown 关闭房间
func (r *Room) Shutdown() {
	r.cancel()
}

// PlayerCount 当前玩家数（供管理器在房间协程之外查询）
func (r *Room) PlayerCount() int32 { return r.playerCount.Load() }

// CurrentFrame 当前帧号
func (r *Room) CurrentFrame() int32 { return atomic.LoadInt32(&r.frameID) }

// Join 玩家加入（同步等待房间协程处理）
func (r *Room) Join(sess Session, req JoinEvent) error {
	respCh := make(chan error, 1)

	select {
	case <-r.ctx.Done():
		return fmt.Errorf("房间已关闭")
	case r.joinCh <- joinRequest{sess: sess, req: req, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return fmt.Errorf("房间已关闭")
	case err := <-respCh:
		return err
	}
}

// Reconnect 玩家重连（同步等待房间协程处理）
func (r *Room) Reconnect(sess Session, playerID int32) (*protocol.ReconnectResponse, error) {
	respCh := make(chan *protocol.ReconnectResponse, 1)

	select {
	case <-r.ctx.Done():
		return nil, fmt.Errorf("房间已关闭")
	case r.reconnectCh <- reconnectRequest{sess: sess, playerID: playerID, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return nil, fmt.Errorf("房间已关闭")
	case resp := <-respCh:
		return resp, nil
	}
}

// EnqueueInput 投递一批输入上报
func (r *Room) EnqueueInput(ev *InputEvent) {
	select {
	case <-r.ctx.Done():
	case r.inputCh <- ev:
	default:
		// 输入队列满：丢弃，窗口重叠会自愈
	}
}

// EnqueueFinish 投递完赛申报
func (r *Room) EnqueueFinish(ev *FinishEvent) {
	select {
	case <-r.ctx.Done():
	case r.finishCh <- ev:
	}
}

// Leave 玩家离开
func (r *Room) Leave(playerID int32) {
	select {
	case <-r.ctx.Done():
	case r.leaveCh <- playerID:
	}
}

// ========== 房间协程内部 ==========

func (r *Room) tick() {
	now := time.Now()

	switch r.state {
	case StateWaiting:
		return

	case StateEnding:
		if !r.resetAt.IsZero() && now.After(r.resetAt) {
			r.resetRoom()
		}
		return

	case StateCountdown:
		if now.After(r.startAt) {
			r.state = StateRunning
			r.log.Infow("比赛开始", "roomID", r.id, "players", len(r.players))
		}

	case StateRunning:
	}

	if r.state == StateRunning {
		r.advanceSimulation(now)
		atomic.AddInt32(&r.frameID, 1)

		if r.frameID%rankEvalFrames == 0 {
			// 周期性重算排名，驱动迟滞过滤推进
			r.session.Standings()
		}
		r.checkRaceOver()
	}

	// 位置报告与快照确认按独立节奏发出（非阻塞检查，不等待）
	if r.state == StateRunning && r.broadcastLimiter.Allow() {
		r.broadcastPositions(now)
		r.sendConfirms(now)
	}
}

// advanceSimulation 逐玩家推进权威模拟
// 有积压输入时按帧号顺序补追，没有输入时空输入滑行一帧，
// 与客户端共用同一个纯物理函数
func (r *Room) advanceSimulation(now time.Time) {
	for _, slot := range r.players {
		applied := 0
		for len(slot.pending) > 0 && applied < maxInputsPerTick {
			in := slot.pending[0]
			slot.pending = slot.pending[1:]
			slot.kart = core.Update(slot.kart, in, core.FixedDeltaTime)
			slot.lastProcessedFrame = in.Frame
			applied++
		}
		if applied == 0 {
			slot.kart = core.Update(slot.kart, core.Input{}, core.FixedDeltaTime)
		}

		// 权威侧进度追踪：投影 → 检查点状态机 → 圈数
		r.session.UpdatePosition(slot.id, slot.kart.X, slot.kart.Y, slot.kart.Speed, now)
		if rs := r.session.Racer(slot.id); rs != nil {
			slot.kart.Lap = rs.Lap
			slot.kart.LapProgress = rs.LapProgress
			if rs.Finished && !slot.finishAnnounced {
				slot.finishAnnounced = true
				r.log.Infow("玩家完赛", "roomID", r.id, "playerID", slot.id, "finishTime", rs.FinishTime)
				r.broadcastFinish(slot.id, rs.FinishTime)
			}
		}
	}
}

// handleInput 合并一批输入到玩家的待处理队列
// 窗口重叠与双通道重复投递靠帧号去重；已处理过的帧直接丢弃
func (r *Room) handleInput(ev *InputEvent) {
	if r.state != StateRunning && r.state != StateCountdown {
		return
	}
	slot, ok := r.players[ev.PlayerID]
	if !ok {
		return
	}

	for _, msg := range ev.Inputs {
		in := protocol.MsgToCoreInput(msg)
		if in.Frame <= slot.lastProcessedFrame {
			continue
		}
		r.insertInput(slot, in)
	}

	// 溢出丢最旧：客户端会因确认帧前移而停止重发旧帧
	if len(slot.pending) > pendingInputCap {
		slot.pending = slot.pending[len(slot.pending)-pendingInputCap:]
	}
}

// insertInput 按帧号插入，重复帧丢弃
func (r *Room) insertInput(slot *playerSlot, in core.Input) {
	n := len(slot.pending)
	if n == 0 || in.Frame > slot.pending[n-1].Frame {
		slot.pending = append(slot.pending, in)
		return
	}
	for i := n - 1; i >= 0; i-- {
		if slot.pending[i].Frame == in.Frame {
			return
		}
		if slot.pending[i].Frame < in.Frame {
			slot.pending = append(slot.pending, core.Input{})
			copy(slot.pending[i+2:], slot.pending[i+1:])
			slot.pending[i+1] = in
			return
		}
	}
	slot.pending = append([]core.Input{in}, slot.pending...)
}

func (r *Room) handleJoin(req joinRequest) {
	if r.state == StateEnding {
		req.respCh <- fmt.Errorf("房间结算中，暂时无法加入")
		return
	}
	if len(r.players) >= MaxPlayers {
		req.respCh <- fmt.Errorf("房间已满 (%d/%d)", len(r.players), MaxPlayers)
		return
	}

	playerID := r.nextPlayerID
	r.nextPlayerID++

	// 起跑格：沿参考线起点横向错开
	spawnX, spawnY, spawnYaw := r.spawnPose(int(playerID))

	slot := &playerSlot{
		id:    playerID,
		name:  req.req.PlayerName,
		color: req.req.KartColor,
		sess:  req.sess,
		kart:  core.NewKartState(spawnX, spawnY, spawnYaw),
	}

	token, err := GenerateSessionToken(playerID, r.id)
	if err != nil {
		req.respCh <- fmt.Errorf("生成会话令牌失败: %w", err)
		return
	}

	resp := &protocol.JoinResponse{
		Success:      true,
		PlayerID:     playerID,
		SessionToken: token,
		RaceID:       r.id,
		TotalLaps:    r.totalLaps,
		TPS:          ServerTPS,
		SpawnX:       spawnX,
		SpawnY:       spawnY,
		SpawnYaw:     spawnYaw,
	}
	if r.track != nil {
		resp.Track = protocol.TrackPointsToMsg(r.track.Points())
	}

	pkt, err := protocol.NewJoinResponsePacket(resp)
	if err != nil {
		req.respCh <- fmt.Errorf("序列化加入响应失败: %w", err)
		return
	}
	data, err := protocol.MarshalPacket(pkt)
	if err != nil {
		req.respCh <- fmt.Errorf("序列化加入响应失败: %w", err)
		return
	}
	if err := req.sess.Send(data); err != nil {
		req.respCh <- fmt.Errorf("发送加入响应失败: %w", err)
		return
	}

	req.sess.SetPlayerID(playerID)
	req.sess.SetRoomID(r.id)
	r.players[playerID] = slot
	r.playerCount.Store(int32(len(r.players)))
	r.session.AddRacer(playerID, slot.name, time.Now())

	// 互相通报：老玩家收新人，新人收全体老玩家
	r.broadcastExcept(playerID, mustPacket(protocol.NewPlayerJoinPacket(playerID, slot.name, slot.color)))
	for _, other := range r.players {
		if other.id == playerID {
			continue
		}
		if data := mustPacket(protocol.NewPlayerJoinPacket(other.id, other.name, other.color)); data != nil {
			_ = req.sess.Send(data)
		}
	}

	r.log.Infow("玩家加入", "roomID", r.id, "playerID", playerID, "name", slot.name)

	// 第一个玩家进场即起倒计时
	if r.state == StateWaiting {
		r.state = StateCountdown
		r.startAt = time.Now().Add(countdownDuration)
	}
	// 起跑时刻广播给所有人（迟到者也要拿到同一时刻）
	r.broadcastAll(mustPacket(protocol.NewRaceStartPacket(r.startAt.UnixMilli(), r.totalLaps)))

	req.respCh <- nil
}

func (r *Room) handleReconnect(req reconnectRequest) {
	slot, ok := r.players[req.playerID]
	if !ok {
		req.respCh <- &protocol.ReconnectResponse{
			Success:      false,
			ErrorMessage: fmt.Sprintf("玩家 %d 不在房间 %s 中", req.playerID, r.id),
		}
		return
	}

	// 旧连接静默关闭，新连接顶上
	if slot.sess != nil && slot.sess != req.sess {
		slot.sess.CloseWithoutNotify()
	}
	slot.sess = req.sess
	req.sess.SetPlayerID(req.playerID)
	req.sess.SetRoomID(r.id)

	r.log.Infow("玩家重连", "roomID", r.id, "playerID", req.playerID)

	req.respCh <- &protocol.ReconnectResponse{
		Success:   true,
		PlayerID:  req.playerID,
		LastFrame: slot.lastProcessedFrame,
		State:     protocol.CoreKartToMsg(&slot.kart),
	}
}

func (r *Room) handleLeave(playerID int32) {
	if _, ok := r.players[playerID]; !ok {
		return
	}

	delete(r.players, playerID)
	r.playerCount.Store(int32(len(r.players)))
	r.session.RemoveRacer(playerID)

	r.log.Infow("玩家离开", "roomID", r.id, "playerID", playerID, "remaining", len(r.players))
	r.broadcastAll(mustPacket(protocol.NewPlayerLeavePacket(playerID)))

	if len(r.players) == 0 && r.state == StateRunning {
		r.finishRace()
	}
}

// handleFinish 远端完赛申报：直接钉进排名聚合器并转发
func (r *Room) handleFinish(ev *FinishEvent) {
	slot, ok := r.players[ev.PlayerID]
	if !ok {
		return
	}
	r.session.MarkFinished(ev.PlayerID, ev.FinishTime)
	if !slot.finishAnnounced {
		slot.finishAnnounced = true
		r.broadcastFinish(ev.PlayerID, ev.FinishTime)
	}
}

func (r *Room) checkRaceOver() {
	if r.session.AllFinished() {
		r.finishRace()
	}
}

func (r *Room) finishRace() {
	if r.state == StateEnding {
		return
	}
	r.state = StateEnding
	r.resetAt = time.Now().Add(endingLinger)

	standings := r.session.Standings()
	msgs := make([]protocol.StandingMsg, 0, len(standings))
	for _, s := range standings {
		msgs = append(msgs, protocol.StandingMsg{
			PlayerID:   s.ID,
			Name:       s.Name,
			Rank:       s.Rank,
			Lap:        s.Lap,
			Finished:   s.Finished,
			FinishTime: s.FinishTime,
		})
	}

	r.log.Infow("比赛结束", "roomID", r.id, "standings", len(msgs))
	r.broadcastAll(mustPacket(protocol.NewRaceOverPacket(msgs)))
}

func (r *Room) resetRoom() {
	r.closeAllConnections(false)
	r.session = race.NewSession(r.track, race.DefaultTrackerConfig(r.totalLaps))
	r.players = make(map[int32]*playerSlot)
	r.playerCount.Store(0)
	atomic.StoreInt32(&r.frameID, 0)
	r.state = StateWaiting
	r.startAt = time.Time{}
	r.resetAt = time.Time{}
	r.nextPlayerID = 1
}

func (r *Room) closeAllConnections(notify bool) {
	for _, slot := range r.players {
		if slot.sess == nil {
			continue
		}
		if notify {
			slot.sess.Close()
		} else {
			slot.sess.CloseWithoutNotify()
		}
	}
}

// ========== 广播 ==========

// broadcastPositions 给每个玩家发其余所有车的位置报告
func (r *Room) broadcastPositions(now time.Time) {
	nowMs := now.UnixMilli()

	for _, slot := range r.players {
		report := &protocol.PositionReport{
			PlayerID:    slot.id,
			Position:    [3]float64{slot.kart.X, slot.kart.Y, slot.kart.Z},
			Rotation:    slot.kart.Yaw,
			Speed:       slot.kart.Speed,
			Lap:         slot.kart.Lap,
			LapProgress: slot.kart.LapProgress,
			ServerTime:  nowMs,
			Sequence:    r.frameID,
			Velocity:    &[2]float64{slot.kart.VelX, slot.kart.VelY},
		}
		data := mustPacket(protocol.NewPositionReportPacket(report))
		if data == nil {
			continue
		}
		r.broadcastExcept(slot.id, data)
	}
}

// sendConfirms 给每个玩家回快照确认（权威状态 + 最后处理帧号）
func (r *Room) sendConfirms(now time.Time) {
	nowMs := now.UnixMilli()

	for _, slot := range r.players {
		data := mustPacket(protocol.NewSnapshotConfirmPacket(
			slot.lastProcessedFrame,
			protocol.CoreKartToMsg(&slot.kart),
			nowMs,
		))
		if data == nil || slot.sess == nil {
			continue
		}
		if err := slot.sess.Send(data); err != nil && err != ErrSendQueueFull {
			r.log.Debugw("发送快照确认失败", "playerID", slot.id, "err", err)
		}
	}
}

func (r *Room) broadcastFinish(playerID int32, finishTime int64) {
	r.broadcastAll(mustPacket(protocol.NewFinishNoticePacket(playerID, finishTime)))
}

func (r *Room) broadcastAll(data []byte) {
	if data == nil {
		return
	}
	for _, slot := range r.players {
		if slot.sess != nil {
			_ = slot.sess.Send(data)
		}
	}
}

func (r *Room) broadcastExcept(exceptID int32, data []byte) {
	if data == nil {
		return
	}
	for _, slot := range r.players {
		if slot.id == exceptID || slot.sess == nil {
			continue
		}
		_ = slot.sess.Send(data)
	}
}

// spawnPose 起跑格位姿：起点横向错开、纵向分排
func (r *Room) spawnPose(index int) (x, y, yaw float64) {
	if r.track == nil {
		return float64(index) * 3, 0, 0
	}
	x, y, yaw = r.track.Spawn()
	lateral := float64((index%2)*2-1) * 2.0 // 左右交错
	back := float64((index-1)/2) * 4.0      // 每排两辆
	sin, cos := math.Sincos(yaw)
	x += -sin*lateral - cos*back
	y += cos*lateral - sin*back
	return x, y, yaw
}

func mustPacket(pkt *protocol.Packet, err error) []byte {
	if err != nil {
		return nil
	}
	data, err := protocol.MarshalPacket(pkt)
	if err != nil {
		return nil
	}
	return data
}
