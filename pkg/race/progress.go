package race

import (
	"math"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

// 检查点阶段门槛
// 四个阶段对应一圈内依次越过的三个扇区边界加上起终点线；
// 只有阶段走满才承认过圈，抖动在边界附近来回弹不会刷圈
const (
	stage1Enter = 0.25
	stage1Guard = 0.75 // 0→1 时进度高于此值视为回绕噪声
	stage2Enter = 0.60
	stage3Enter = 0.85

	stage1Regress = 0.10 // 阶段 1 中退回此值以下则降级
	stage2Regress = 0.30
	stage3Regress = 0.70

	lapCrossHigh = 0.90 // 过圈判定：一次更新内从 >0.90 跳到 <0.10
	lapCrossLow  = 0.10
)

// TrackerConfig 进度追踪配置
// 门槛值来自实测调参，按名字暴露而不是写死在判定里
type TrackerConfig struct {
	TotalLaps int

	// 检查点推进的防作弊门槛：低速蠕动或瞬移都不算数
	MinCheckpointSpeed    float64 // 米/秒
	MinCheckpointDistance float64 // 距上一检查点的最小累计里程

	// 完赛里程下限系数：总里程必须超过 FinishDistancePerLap × 总圈数，
	// 拒绝靠穿模跑出的超短"最后一圈"
	FinishDistancePerLap float64

	// 单次更新允许的进度回退量（圈），超过视为真实倒车
	NoiseTolerance float64
}

// DefaultTrackerConfig 默认进度追踪配置
func DefaultTrackerConfig(totalLaps int) TrackerConfig {
	return TrackerConfig{
		TotalLaps:             totalLaps,
		MinCheckpointSpeed:    1.0,
		MinCheckpointDistance: 10.0,
		FinishDistancePerLap:  100.0,
		NoiseTolerance:        0.05,
	}
}

// Tracker 进度追踪器：把含噪声的空间位置转成单调、抗篡改的比赛进度
type Tracker struct {
	track *core.Track
	cfg   TrackerConfig
}

// NewTracker 创建进度追踪器；track 为 nil 时所有更新报告零进度
func NewTracker(track *core.Track, cfg TrackerConfig) *Tracker {
	return &Tracker{track: track, cfg: cfg}
}

// UpdatePosition 用世界坐标推进参赛者进度
// 内部投影到参考线得到单圈进度标量，再走检查点状态机
func (t *Tracker) UpdatePosition(rs *RacerState, x, y, speed float64, nowMs int64) {
	if t.track == nil {
		// 退化赛道：报告零进度而不是产生 NaN 名次
		return
	}

	distDelta := 0.0
	if rs.hasPrevPosition {
		distDelta = math.Hypot(x-rs.lastX, y-rs.lastY)
	}
	rs.lastX, rs.lastY = x, y
	rs.hasPrevPosition = true

	frac := t.track.Project(x, y)
	t.UpdateFraction(rs, frac, speed, distDelta, nowMs)
}

// UpdateFraction 用已投影的单圈进度推进检查点状态机
func (t *Tracker) UpdateFraction(rs *RacerState, frac, speed, distDelta float64, nowMs int64) {
	if rs.Finished {
		return
	}

	rs.Distance += distDelta
	prev := rs.prevFrac
	rs.prevFrac = frac

	// 检查点推进门槛：速度和里程都要达标，瞬移与原地抖动不推进
	canAdvance := math.Abs(speed) >= t.cfg.MinCheckpointSpeed &&
		rs.Distance-rs.stageDistance >= t.cfg.MinCheckpointDistance

	switch rs.Stage {
	case 0:
		if canAdvance && frac > stage1Enter && frac < stage1Guard {
			t.enterStage(rs, 1)
		}
	case 1:
		if frac < stage1Regress {
			rs.Stage = 0
		} else if canAdvance && frac > stage2Enter {
			t.enterStage(rs, 2)
		}
	case 2:
		if frac < stage2Regress {
			rs.Stage = 1
		} else if canAdvance && frac > stage3Enter {
			t.enterStage(rs, 3)
		}
	case 3:
		if frac < stage3Regress && frac > lapCrossLow {
			rs.Stage = 2
		} else if prev > lapCrossHigh && frac < lapCrossLow {
			// 真实过线：阶段走满且一次更新内跨越起终点
			rs.Lap++
			rs.Stage = 0
			rs.stageDistance = rs.Distance
			t.checkFinish(rs, nowMs)
		}
	}

	rs.LapProgress = frac
	t.updateTotalProgress(rs)
}

func (t *Tracker) enterStage(rs *RacerState, stage int) {
	rs.Stage = stage
	rs.stageDistance = rs.Distance
}

// checkFinish 完赛判定：圈数超过配置总数且累计里程达标
func (t *Tracker) checkFinish(rs *RacerState, nowMs int64) {
	if rs.Lap <= t.cfg.TotalLaps {
		return
	}
	if rs.Distance < t.cfg.FinishDistancePerLap*float64(t.cfg.TotalLaps) {
		// 里程不足：疑似穿模刷出的短圈，保持未完赛
		rs.Lap = t.cfg.TotalLaps
		return
	}
	rs.Finished = true
	rs.FinishTime = nowMs
}

// updateTotalProgress 维护单调累计进度
func (t *Tracker) updateTotalProgress(rs *RacerState) {
	if rs.Finished {
		rs.TotalProgress = FinishedProgressSentinel
		return
	}

	next := float64(rs.Lap-1) + rs.LapProgress
	// 噪声容差内的回退不发布，超过容差视为真实倒车
	if next < rs.TotalProgress && rs.TotalProgress-next <= t.cfg.NoiseTolerance {
		return
	}
	rs.TotalProgress = next
}
