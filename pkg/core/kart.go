package core

import "math"

// KartState 车辆物理状态（纯数据，不包含渲染）
// 任一时刻只由一个模拟方持有：本地车由本地物理循环驱动，
// 远端车只能通过快照缓冲读取，绝不直接写入
type KartState struct {
	// 位姿
	X, Y, Z float64
	Yaw     float64 // 车头朝向（弧度）

	// 运动
	Speed      float64 // 标量速度，倒车为负
	VelX, VelY float64 // 平面速度向量
	SteerAngle float64 // 当前转向输入角

	// 圈数进度
	Lap         int
	LapProgress float64 // [0,1)

	// 漂移
	Drifting     bool
	DriftDir     float64 // +1 左 / -1 右
	DriftTimer   float64
	DriftLockYaw float64 // 入弯时锁定的车头角

	// 临时增益 / 异常状态
	BoostFactor float64 // 速度上限倍率，1.0 表示无加速
	BoostTimer  float64
	Invincible  bool
	StarTimer   float64
	OilSlip     bool
	OilTimer    float64
	SpinOut     bool
	SpinTimer   float64
}

// NewKartState 在指定出生位姿创建车辆状态
func NewKartState(x, y, yaw float64) KartState {
	return KartState{
		X:           x,
		Y:           y,
		Yaw:         yaw,
		Lap:         1,
		BoostFactor: 1.0,
	}
}

// SpeedCap 当前速度上限（含加速与星星倍率）
func (s *KartState) SpeedCap() float64 {
	cap := KartMaxSpeed
	if s.BoostTimer > 0 && s.BoostFactor > 1.0 {
		cap *= s.BoostFactor
	}
	if s.StarTimer > 0 {
		cap *= StarSpeedFactor
	}
	return cap
}

// ========== 效果施加（仅状态持有方调用） ==========

// ApplyOilSlip 踩到油渍：限速打滑一段时间
func (s *KartState) ApplyOilSlip() {
	s.OilSlip = true
	s.OilTimer = OilSlipDuration
}

// ApplySpinOut 被击中打转：速度清零并忽略转向直到计时结束
func (s *KartState) ApplySpinOut() {
	if s.Invincible {
		return
	}
	s.SpinOut = true
	s.SpinTimer = SpinOutDuration
	s.Speed = 0
}

// ApplyStar 无敌星：提高限速并在碰撞判定中免疫
func (s *KartState) ApplyStar() {
	s.Invincible = true
	s.StarTimer = StarDuration
}

// ApplyBoost 直接施加一段限时加速（道具等外部来源）
func (s *KartState) ApplyBoost(factor, duration float64) {
	s.BoostFactor = factor
	s.BoostTimer = duration
}

// ApplyCollisionVelocity 回写外部碰撞引擎的后置速度
// 后置速度明显低于指令速度时视为发生碰撞，用后置速度替换，
// 使再加速是渐进的而不是瞬间恢复
func (s *KartState) ApplyCollisionVelocity(postVelX, postVelY float64) {
	commanded := math.Hypot(s.VelX, s.VelY)
	post := math.Hypot(postVelX, postVelY)
	if commanded <= 0 || post >= commanded*CollisionSpeedRatio {
		return
	}
	s.VelX = postVelX
	s.VelY = postVelY
	if s.Speed > 0 {
		s.Speed = post
	} else {
		s.Speed = -post
	}
}

// PlanarDistanceSq 与另一状态的平面距离平方（和解误差度量）
func (s *KartState) PlanarDistanceSq(other *KartState) float64 {
	dx := s.X - other.X
	dy := s.Y - other.Y
	return dx*dx + dy*dy
}

// NormalizeAngle 将角度归一化到 (-π, π]
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// AngleDelta 最短弧角度差：从 from 转到 to 的有符号增量
func AngleDelta(from, to float64) float64 {
	return NormalizeAngle(to - from)
}

// LerpAngle 沿最短弧插值角度
func LerpAngle(from, to, t float64) float64 {
	return NormalizeAngle(from + AngleDelta(from, to)*t)
}
