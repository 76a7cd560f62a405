package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

// 直接驱动状态机的辅助：速度和里程都给足，让检查点门槛放行
func advance(tr *Tracker, rs *RacerState, frac float64) {
	tr.UpdateFraction(rs, frac, 10, 30, 1000)
}

func newTestTracker(totalLaps int) *Tracker {
	return NewTracker(nil, DefaultTrackerConfig(totalLaps))
}

func TestStageProgressionAndLapCrossing(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")

	advance(tr, rs, 0.30)
	assert.Equal(t, 1, rs.Stage)
	advance(tr, rs, 0.65)
	assert.Equal(t, 2, rs.Stage)
	advance(tr, rs, 0.88)
	assert.Equal(t, 3, rs.Stage)

	// 跨越起终点：圈数 +1，阶段清零
	advance(tr, rs, 0.92)
	advance(tr, rs, 0.03)
	assert.Equal(t, 2, rs.Lap)
	assert.Equal(t, 0, rs.Stage)
}

func TestLapCrossingCountsExactlyOnce(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")
	rs.Stage = 3
	rs.prevFrac = 0.88

	// 0.92 → 0.95 → 0.03：边界附近连续更新只承认一次过圈
	advance(tr, rs, 0.92)
	require.Equal(t, 1, rs.Lap)
	advance(tr, rs, 0.95)
	require.Equal(t, 1, rs.Lap)
	advance(tr, rs, 0.03)
	require.Equal(t, 2, rs.Lap)

	// 过线后在低位继续走不会再判
	advance(tr, rs, 0.05)
	assert.Equal(t, 2, rs.Lap)
}

func TestLapCrossingRequiresFullStages(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")

	// 阶段没走满，直接在起终点附近来回弹不刷圈
	advance(tr, rs, 0.95)
	advance(tr, rs, 0.03)
	assert.Equal(t, 1, rs.Lap)
	assert.Equal(t, 0, rs.Stage)
}

func TestStageOneWrapGuard(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")

	// 起点附近的回绕噪声（高进度值）不触发阶段 1
	advance(tr, rs, 0.80)
	assert.Equal(t, 0, rs.Stage)
}

func TestStageRegression(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")
	advance(tr, rs, 0.30)
	advance(tr, rs, 0.65)
	require.Equal(t, 2, rs.Stage)

	// 真实倒车：跌破阶段门槛逐级降级
	advance(tr, rs, 0.25)
	assert.Equal(t, 1, rs.Stage)
	advance(tr, rs, 0.05)
	assert.Equal(t, 0, rs.Stage)
}

func TestCheckpointSpeedGuard(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")

	// 低速蠕动不推进检查点
	tr.UpdateFraction(rs, 0.30, 0.5, 30, 1000)
	assert.Equal(t, 0, rs.Stage)
}

func TestCheckpointDistanceGuard(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")

	// 速度达标但里程不足（瞬移）同样不推进
	tr.UpdateFraction(rs, 0.30, 10, 1, 1000)
	assert.Equal(t, 0, rs.Stage)
}

func TestFinishRequiresDistance(t *testing.T) {
	tr := newTestTracker(1)
	rs := NewRacerState(1, "a")

	// 每次更新 15 米：阶段门槛过得去，但总里程凑不够完赛下限
	step := func(frac float64) { tr.UpdateFraction(rs, frac, 10, 15, 5000) }
	step(0.30)
	step(0.65)
	step(0.88)
	step(0.92)
	step(0.03)

	// 圈数被按住，不判完赛
	assert.False(t, rs.Finished)
	assert.Equal(t, 1, rs.Lap)

	// 补足里程后再跑一圈即完赛
	step(0.30)
	step(0.65)
	step(0.88)
	step(0.92)
	step(0.03)
	assert.True(t, rs.Finished)
	assert.Equal(t, int64(5000), rs.FinishTime)
}

func TestTotalProgressNoiseTolerance(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")

	advance(tr, rs, 0.50)
	require.InDelta(t, 0.50, rs.TotalProgress, 1e-9)

	// 容差内的投影抖动不回退
	advance(tr, rs, 0.47)
	assert.InDelta(t, 0.50, rs.TotalProgress, 1e-9)

	// 超过容差视为真实倒车，如实发布
	advance(tr, rs, 0.30)
	assert.InDelta(t, 0.30, rs.TotalProgress, 1e-9)
}

func TestFinishedRacerIgnoresUpdates(t *testing.T) {
	tr := newTestTracker(3)
	rs := NewRacerState(1, "a")
	rs.Finished = true
	rs.TotalProgress = FinishedProgressSentinel

	advance(tr, rs, 0.50)
	assert.Equal(t, float64(FinishedProgressSentinel), rs.TotalProgress)
	assert.Equal(t, 1, rs.Lap)
}

func TestNilTrackReportsZeroProgress(t *testing.T) {
	tr := NewTracker(nil, DefaultTrackerConfig(3))
	rs := NewRacerState(1, "a")

	// 退化赛道：位置更新静默降级，不产生 NaN
	tr.UpdatePosition(rs, 50, 50, 10, 1000)
	assert.Zero(t, rs.TotalProgress)
	assert.Zero(t, rs.LapProgress)
	assert.False(t, rs.Finished)
}

func TestTrackedUpdateThroughProjection(t *testing.T) {
	track, err := core.NewTrack([]core.TrackPoint{
		{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100},
	}, 3)
	require.NoError(t, err)
	tr := NewTracker(track, DefaultTrackerConfig(3))
	rs := NewRacerState(1, "a")

	// 沿参考线行驶：世界坐标投影驱动同一套状态机
	tr.UpdatePosition(rs, 0, 0, 10, 1000)
	tr.UpdatePosition(rs, 60, 0, 10, 1000)
	tr.UpdatePosition(rs, 100, 20, 10, 1000)
	tr.UpdatePosition(rs, 100, 60, 10, 1000)
	tr.UpdatePosition(rs, 40, 100, 10, 1000)

	assert.Equal(t, 2, rs.Stage)
	assert.InDelta(t, 0.65, rs.LapProgress, 1e-9)
	assert.Greater(t, rs.Distance, 150.0)
}