package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 固定的输入序列生成器：测试内可复现
func makeInputs(n int) []Input {
	inputs := make([]Input, n)
	for i := range inputs {
		inputs[i] = Input{
			Frame:    int32(i + 1),
			Throttle: 1,
			Steer:    float64((i%7)-3) / 3,
			Brake:    i%17 == 0,
			Drift:    i%23 > 15,
		}
	}
	return inputs
}

func TestUpdateDeterminism(t *testing.T) {
	inputs := makeInputs(240)

	a := NewKartState(5, -3, 0.7)
	b := NewKartState(5, -3, 0.7)
	for _, in := range inputs {
		a = Update(a, in, FixedDeltaTime)
		b = Update(b, in, FixedDeltaTime)
	}

	// 纯函数：同一序列两次模拟必须逐位相同
	require.Equal(t, a, b)
}

func TestUpdateReplayEquivalence(t *testing.T) {
	inputs := makeInputs(120)

	full := NewKartState(0, 0, 0)
	var mid KartState
	for i, in := range inputs {
		full = Update(full, in, FixedDeltaTime)
		if i == 59 {
			mid = full
		}
	}

	// 从中途快照重放剩余输入，结果与连续模拟完全一致——
	// 预测引擎的和解重放正是依赖这一点
	replayed := mid
	for _, in := range inputs[60:] {
		replayed = Update(replayed, in, FixedDeltaTime)
	}
	require.Equal(t, full, replayed)
}

func TestThrottleAcceleratesToCap(t *testing.T) {
	s := NewKartState(0, 0, 0)
	for i := 0; i < 180; i++ {
		s = Update(s, Input{Throttle: 1}, FixedDeltaTime)
	}

	assert.Equal(t, KartMaxSpeed, s.Speed)
	assert.Greater(t, s.X, 0.0)
	assert.InDelta(t, 0, s.Y, 1e-9)
}

func TestBrakeReversesToLowerCap(t *testing.T) {
	s := NewKartState(0, 0, 0)
	for i := 0; i < 120; i++ {
		s = Update(s, Input{Brake: true}, FixedDeltaTime)
	}

	// 倒车上限只有正向的一部分
	assert.Equal(t, -KartMaxSpeed*KartReverseMax, s.Speed)
}

func TestDragCoastsToZero(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.Speed = 10
	for i := 0; i < 180; i++ {
		s = Update(s, Input{}, FixedDeltaTime)
	}
	assert.Zero(t, s.Speed)
}

func TestDriftHoldLocksYawAndTiersBoost(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.Speed = 25

	// 进入漂移
	s = Update(s, Input{Throttle: 1, Steer: 1, Drift: true}, FixedDeltaTime)
	require.True(t, s.Drifting)
	lockYaw := s.DriftLockYaw

	// 按住 1.6 秒：车头角保持锁定，计时器累积
	for i := 0; i < 96; i++ {
		s = Update(s, Input{Throttle: 1, Steer: 1, Drift: true}, FixedDeltaTime)
		assert.Equal(t, lockYaw, s.Yaw)
	}
	require.GreaterOrEqual(t, s.DriftTimer, DriftTier2Seconds)

	// 释放：换二档加速
	s = Update(s, Input{Throttle: 1}, FixedDeltaTime)
	assert.False(t, s.Drifting)
	assert.InDelta(t, 1.25, s.BoostFactor, 1e-9)
	assert.Greater(t, s.BoostTimer, 0.0)
	assert.Greater(t, s.SpeedCap(), KartMaxSpeed)
}

func TestDriftBelowMinSpeedDoesNotEnter(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.Speed = 8 // 低于漂移门槛
	s = Update(s, Input{Throttle: 1, Steer: 1, Drift: true}, FixedDeltaTime)
	assert.False(t, s.Drifting)
}

func TestDriftInterruptedBySpeedLossGivesNoBoost(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.Speed = 14
	s = Update(s, Input{Throttle: 1, Steer: -1, Drift: true}, FixedDeltaTime)
	require.True(t, s.Drifting)

	// 按住漂移的同时刹车，速度跌破保持下限即强制中断
	for i := 0; i < 60 && s.Drifting; i++ {
		s = Update(s, Input{Steer: -1, Drift: true, Brake: true}, FixedDeltaTime)
	}
	assert.False(t, s.Drifting)
	assert.Equal(t, 1.0, s.BoostFactor)
	assert.Zero(t, s.BoostTimer)
}

func TestSpinOutIgnoresInputUntilTimerExpires(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.Speed = 20
	s.ApplySpinOut()
	require.True(t, s.SpinOut)
	require.Zero(t, s.Speed)

	yawBefore := s.Yaw
	s = Update(s, Input{Throttle: 1, Steer: 1}, FixedDeltaTime)
	assert.True(t, s.SpinOut)
	assert.NotEqual(t, yawBefore, s.Yaw) // 车身自转
	assert.Zero(t, s.Speed)              // 油门无效

	for i := 0; i < int(SpinOutDuration*TPS); i++ {
		s = Update(s, Input{Throttle: 1}, FixedDeltaTime)
	}
	assert.False(t, s.SpinOut)
}

func TestOilSlipCompressesSpeedCap(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.Speed = KartMaxSpeed
	s.ApplyOilSlip()

	s = Update(s, Input{Throttle: 1}, FixedDeltaTime)
	assert.InDelta(t, KartMaxSpeed*OilSlipSpeedFactor, s.Speed, 1e-9)

	// 计时结束后限速恢复
	for i := 0; i < int(OilSlipDuration*TPS)+1; i++ {
		s = Update(s, Input{Throttle: 1}, FixedDeltaTime)
	}
	assert.False(t, s.OilSlip)
	assert.Greater(t, s.Speed, KartMaxSpeed*OilSlipSpeedFactor)
}

func TestStarBlocksSpinOutAndRaisesCap(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.ApplyStar()
	require.True(t, s.Invincible)
	assert.InDelta(t, KartMaxSpeed*StarSpeedFactor, s.SpeedCap(), 1e-9)

	s.ApplySpinOut()
	assert.False(t, s.SpinOut)

	for i := 0; i < int(StarDuration*TPS)+1; i++ {
		s = Update(s, Input{Throttle: 1}, FixedDeltaTime)
	}
	assert.False(t, s.Invincible)
}

func TestApplyCollisionVelocity(t *testing.T) {
	s := NewKartState(0, 0, 0)
	s.Speed = 10
	s.VelX, s.VelY = 10, 0

	// 后置速度接近指令速度：不算碰撞，不回写
	s.ApplyCollisionVelocity(9.5, 0)
	assert.Equal(t, 10.0, s.Speed)

	// 明显受阻：替换速度向量，再加速从受阻速度渐进恢复
	s.ApplyCollisionVelocity(4, 0)
	assert.Equal(t, 4.0, s.Speed)
	assert.Equal(t, 4.0, s.VelX)
}

func TestAngleHelpers(t *testing.T) {
	// 跨 π 的最短弧：从 3.0 到 -3.0 应该正向转过缺口
	assert.InDelta(t, 2*math.Pi-6.0, AngleDelta(3.0, -3.0), 1e-9)
	assert.InDelta(t, 0, NormalizeAngle(4*math.Pi), 1e-9)

	mid := LerpAngle(3.0, -3.0, 0.5)
	assert.InDelta(t, math.Pi, math.Abs(mid), 1e-9)
}
