package client

import (
	"math"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

// Autopilot 巡线驾驶：沿赛道参考线取前瞻点，朝它打方向
// 无头客户端的输入来源（输入设备采集在核心之外）
type Autopilot struct {
	track     *core.Track
	lookahead float64 // 前瞻距离（圈的比例）
}

// NewAutopilot 创建巡线驾驶器
func NewAutopilot(track *core.Track) *Autopilot {
	return &Autopilot{track: track, lookahead: 0.02}
}

// Decide 根据当前车辆状态产出一帧输入
func (a *Autopilot) Decide(state core.KartState) LocalInput {
	if a.track == nil {
		return LocalInput{Throttle: 1}
	}

	frac := a.track.Project(state.X, state.Y)
	target := a.track.PointAt(frac + a.lookahead)

	desired := math.Atan2(target.Y-state.Y, target.X-state.X)
	delta := core.AngleDelta(state.Yaw, desired)

	steer := delta * 2
	if steer > 1 {
		steer = 1
	} else if steer < -1 {
		steer = -1
	}

	return LocalInput{
		Throttle: 1,
		Steer:    steer,
		// 急弯且速度够快时起漂
		Drift: math.Abs(delta) > 0.55 && state.Speed > core.DriftMinSpeed,
	}
}
