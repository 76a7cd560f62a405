package client

import (
	"math"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

// Snapshot 远端车状态快照（客户端插值缓冲）
type Snapshot struct {
	ServerTime int64 // 发送方相对时钟（毫秒），仅用于去重
	ReceivedAt int64 // 本地接收时钟（毫秒），插值的逻辑时间轴

	X, Y        float64
	Yaw         float64
	Speed       float64
	Lap         int
	LapProgress float64

	VelX, VelY  float64
	HasVelocity bool
	Sequence    int32
}

// Pose 某个渲染时刻算出的远端位姿
type Pose struct {
	X, Y        float64
	Yaw         float64
	Speed       float64
	Lap         int
	LapProgress float64
}

// SnapshotBuffer 单个远端车的快照缓冲
// 按本地接收时间排序，时间窗而不是条数窗；
// 低延迟通道和可靠回退通道可能投递同一条逻辑更新，按发送方时间去重
type SnapshotBuffer struct {
	snaps []Snapshot // ReceivedAt 升序

	// 由相邻快照推导的速度（报文不带速度时的外推依据）
	lastVelX, lastVelY float64
}

// Add 插入一条快照
// 重复的发送方时间戳直接丢弃；乱序到达按接收时间插到正确位置；
// 返回是否真正入缓冲
func (b *SnapshotBuffer) Add(snap Snapshot) bool {
	for i := range b.snaps {
		if b.snaps[i].ServerTime == snap.ServerTime {
			return false
		}
	}

	// 常见情况：顺序到达，直接追加
	idx := len(b.snaps)
	for idx > 0 && b.snaps[idx-1].ReceivedAt > snap.ReceivedAt {
		idx--
	}
	b.snaps = append(b.snaps, Snapshot{})
	copy(b.snaps[idx+1:], b.snaps[idx:])
	b.snaps[idx] = snap

	b.deriveVelocity()
	b.prune()
	return true
}

// deriveVelocity 用最新两条快照推导速度（米/毫秒 → 米/秒换算在外推处做）
func (b *SnapshotBuffer) deriveVelocity() {
	n := len(b.snaps)
	if n < 2 {
		return
	}
	last, prev := b.snaps[n-1], b.snaps[n-2]
	dt := float64(last.ReceivedAt - prev.ReceivedAt)
	if dt <= 0 {
		return
	}
	b.lastVelX = (last.X - prev.X) / dt * 1000
	b.lastVelY = (last.Y - prev.Y) / dt * 1000
}

// prune 裁剪到最近 SnapshotWindowMs（相对最新一条的接收时间）
func (b *SnapshotBuffer) prune() {
	if len(b.snaps) == 0 {
		return
	}
	cutoff := b.snaps[len(b.snaps)-1].ReceivedAt - SnapshotWindowMs
	i := 0
	for i < len(b.snaps) && b.snaps[i].ReceivedAt < cutoff {
		i++
	}
	if i > 0 {
		b.snaps = append(b.snaps[:0], b.snaps[i:]...)
	}
}

// Len 当前缓冲条数
func (b *SnapshotBuffer) Len() int { return len(b.snaps) }

// Newest 最新一条快照的接收时间；空缓冲返回 0
func (b *SnapshotBuffer) Newest() int64 {
	if len(b.snaps) == 0 {
		return 0
	}
	return b.snaps[len(b.snaps)-1].ReceivedAt
}

// StateAt 取渲染时刻的位姿，三种情况：
//  1. 渲染时刻不早于最新快照 → 外推，封顶 ExtrapolationMaxMs
//  2. 落在两条快照之间 → 位置/速度线性插值，角度走最短弧
//  3. 早于最旧快照 → 原样返回最旧快照
func (b *SnapshotBuffer) StateAt(renderTime int64) (Pose, bool) {
	if len(b.snaps) == 0 {
		return Pose{}, false
	}

	newest := b.snaps[len(b.snaps)-1]
	if renderTime >= newest.ReceivedAt {
		return b.extrapolate(newest, renderTime), true
	}

	oldest := b.snaps[0]
	if renderTime <= oldest.ReceivedAt {
		return poseOf(oldest), true
	}

	// 找到夹住渲染时刻的相邻对
	for i := 0; i < len(b.snaps)-1; i++ {
		prev, next := b.snaps[i], b.snaps[i+1]
		if prev.ReceivedAt <= renderTime && renderTime <= next.ReceivedAt {
			span := float64(next.ReceivedAt - prev.ReceivedAt)
			if span <= 0 {
				return poseOf(next), true
			}
			alpha := float64(renderTime-prev.ReceivedAt) / span
			return interpolate(prev, next, alpha), true
		}
	}
	return poseOf(newest), true
}

// extrapolate 航位推测：用最后已知速度向前投影，缺口封顶
func (b *SnapshotBuffer) extrapolate(last Snapshot, renderTime int64) Pose {
	gap := renderTime - last.ReceivedAt
	if gap > ExtrapolationMaxMs {
		gap = ExtrapolationMaxMs
	}

	velX, velY := b.lastVelX, b.lastVelY
	if last.HasVelocity {
		velX, velY = last.VelX, last.VelY
	}

	dt := float64(gap) / 1000
	p := poseOf(last)
	p.X += velX * dt
	p.Y += velY * dt
	return p
}

// interpolate 线性插值位置与速度，最短弧插值角度
// alpha=0 精确等于 prev，alpha=1 精确等于 next，边界无混合痕迹
func interpolate(prev, next Snapshot, alpha float64) Pose {
	// 单圈进度带回绕的插值
	dFrac := next.LapProgress - prev.LapProgress
	if dFrac < -0.5 {
		dFrac += 1
	} else if dFrac > 0.5 {
		dFrac -= 1
	}
	frac := prev.LapProgress + dFrac*alpha
	frac -= math.Floor(frac)

	return Pose{
		X:           prev.X + (next.X-prev.X)*alpha,
		Y:           prev.Y + (next.Y-prev.Y)*alpha,
		Yaw:         core.LerpAngle(prev.Yaw, next.Yaw, alpha),
		Speed:       prev.Speed + (next.Speed-prev.Speed)*alpha,
		Lap:         next.Lap,
		LapProgress: frac,
	}
}

func poseOf(s Snapshot) Pose {
	return Pose{X: s.X, Y: s.Y, Yaw: s.Yaw, Speed: s.Speed, Lap: s.Lap, LapProgress: s.LapProgress}
}

// RemoteSmoother 远端车插值与渲染平滑
// 快照缓冲算出的原始位姿再过一层指数平滑，吸收不规则包间距的残余抖动；
// 一步跳变超过瞬移阈值时直接吸附
type RemoteSmoother struct {
	Buffer SnapshotBuffer

	delayMs  int64
	rendered Pose
	hasPose  bool
}

// NewRemoteSmoother 创建插值缓冲器
func NewRemoteSmoother() *RemoteSmoother {
	return &RemoteSmoother{delayMs: DefaultInterpolationDelayMs}
}

// SetInterpolationDelay 设置插值延迟（毫秒），按 RTT 动态调整
func (s *RemoteSmoother) SetInterpolationDelay(delayMs int64) {
	if delayMs < MinInterpolationDelayMs {
		delayMs = MinInterpolationDelayMs
	}
	if delayMs > MaxInterpolationDelayMs {
		delayMs = MaxInterpolationDelayMs
	}
	s.delayMs = delayMs
}

// InterpolationDelay 当前插值延迟（毫秒）
func (s *RemoteSmoother) InterpolationDelay() int64 { return s.delayMs }

// RenderPose 取本帧渲染位姿：渲染时间 = 本地时钟 - 插值延迟
func (s *RemoteSmoother) RenderPose(nowMs int64) (Pose, bool) {
	raw, ok := s.Buffer.StateAt(nowMs - s.delayMs)
	if !ok {
		return Pose{}, false
	}

	if !s.hasPose {
		s.rendered = raw
		s.hasPose = true
		return s.rendered, true
	}

	dx := raw.X - s.rendered.X
	dy := raw.Y - s.rendered.Y
	if math.Hypot(dx, dy) > TeleportDistance {
		// 瞬移：平滑只会拖出一条可见的拖影，直接吸附
		s.rendered = raw
		return s.rendered, true
	}

	s.rendered.X += dx * RenderSmoothFactor
	s.rendered.Y += dy * RenderSmoothFactor
	s.rendered.Yaw = core.LerpAngle(s.rendered.Yaw, raw.Yaw, RenderSmoothFactor)
	s.rendered.Speed += (raw.Speed - s.rendered.Speed) * RenderSmoothFactor
	s.rendered.Lap = raw.Lap
	s.rendered.LapProgress = raw.LapProgress
	return s.rendered, true
}
