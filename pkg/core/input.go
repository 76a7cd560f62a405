package core

import "math"

// Input 一个模拟帧内的玩家输入
// 帧号单调递增；创建后不可变，在服务器确认前由预测引擎的待确认缓冲持有
type Input struct {
	Frame    int32
	Throttle float64 // [0,1]
	Steer    float64 // [-1,1]，正值左转
	Brake    bool
	Drift    bool
	UseItem  bool
	SentAt   int64 // 客户端发送时间（Unix 毫秒）
}

// Update 推进一帧车辆物理：(state, input, dt) -> newState
// 纯函数，无 I/O、无全局状态，相同入参必然产生相同结果——
// 本地预测和快照和解的重放共用这一个函数，确定性是重放有效的前提
func Update(s KartState, in Input, dt float64) KartState {
	tickTimers(&s, dt)

	// 打转期间忽略一切输入，速度衰减、车身自转
	if s.SpinOut {
		s.Speed = moveToward(s.Speed, 0, KartBrakeDecel*dt)
		s.Yaw = NormalizeAngle(s.Yaw + (4*math.Pi/SpinOutDuration)*dt)
		integrate(&s, dt, false)
		return s
	}

	throttle := clamp(in.Throttle, 0, 1)
	steer := clamp(in.Steer, -1, 1)
	s.SteerAngle = steer

	// 1. 油门 / 刹车 / 阻力作用在标量速度上
	switch {
	case in.Brake:
		s.Speed -= KartBrakeDecel * dt
	case throttle > 0:
		s.Speed += throttle * KartAcceleration * dt
	default:
		s.Speed = moveToward(s.Speed, 0, KartDrag*dt)
	}

	// 2. 限速：倒车上限更低，油渍打滑额外压缩上限
	maxCap := s.SpeedCap()
	if s.OilSlip {
		maxCap *= OilSlipSpeedFactor
	}
	s.Speed = clamp(s.Speed, -KartMaxSpeed*KartReverseMax, maxCap)

	// 3. 漂移状态机：进入 → 保持（锁定车头角）→ 释放换加速
	updateDrift(&s, in, steer, dt)

	// 4. 转向积分：高速时转向量按比例衰减；漂移期间车头角被锁定
	if !s.Drifting && s.Speed != 0 {
		scale := 1.0 - (1.0-KartSteerHighSpeedMin)*math.Min(math.Abs(s.Speed)/KartMaxSpeed, 1.0)
		s.Yaw = NormalizeAngle(s.Yaw + steer*KartSteerRate*scale*dt)
	}

	// 5. 速度向量与位置积分
	integrate(&s, dt, s.Drifting)
	return s
}

// tickTimers 推进所有限时状态的计时器
func tickTimers(s *KartState, dt float64) {
	if s.BoostTimer > 0 {
		s.BoostTimer -= dt
		if s.BoostTimer <= 0 {
			s.BoostTimer = 0
			s.BoostFactor = 1.0
		}
	}
	if s.StarTimer > 0 {
		s.StarTimer -= dt
		if s.StarTimer <= 0 {
			s.StarTimer = 0
			s.Invincible = false
		}
	}
	if s.OilTimer > 0 {
		s.OilTimer -= dt
		if s.OilTimer <= 0 {
			s.OilTimer = 0
			s.OilSlip = false
		}
	}
	if s.SpinTimer > 0 {
		s.SpinTimer -= dt
		if s.SpinTimer <= 0 {
			s.SpinTimer = 0
			s.SpinOut = false
		}
	}
}

// updateDrift 漂移进入 / 保持 / 释放
func updateDrift(s *KartState, in Input, steer, dt float64) {
	if in.Drift && !s.Drifting {
		if s.Speed > DriftMinSpeed && steer != 0 {
			s.Drifting = true
			s.DriftDir = math.Copysign(1, steer)
			s.DriftTimer = 0
			s.DriftLockYaw = s.Yaw
		}
		return
	}

	if !s.Drifting {
		return
	}

	// 保持：速度跌破下限视为漂移失败，不给加速
	if in.Drift && s.Speed > DriftMinSpeed*0.5 {
		s.DriftTimer += dt
		s.Yaw = s.DriftLockYaw
		return
	}

	// 释放：按累计时长换算加速档位
	tier := driftTier(s.DriftTimer)
	if in.Drift {
		tier = 0 // 速度不足被迫中断
	}
	if tier > 0 {
		s.BoostFactor = driftBoostFactor[tier]
		s.BoostTimer = driftBoostDuration[tier]
	}
	s.Drifting = false
	s.DriftTimer = 0
	s.DriftDir = 0
}

// driftTier 漂移时长对应的加速档位（0 表示无）
func driftTier(held float64) int {
	switch {
	case held >= DriftTier3Seconds:
		return 3
	case held >= DriftTier2Seconds:
		return 2
	case held >= DriftTier1Seconds:
		return 1
	default:
		return 0
	}
}

// integrate 由车头朝向和标量速度合成速度向量并积分位置
// 漂移期间叠加垂直于车头的侧滑项
func integrate(s *KartState, dt float64, sliding bool) {
	s.VelX = math.Cos(s.Yaw) * s.Speed
	s.VelY = math.Sin(s.Yaw) * s.Speed
	if sliding {
		s.VelX += -math.Sin(s.Yaw) * s.DriftDir * DriftSlideRate
		s.VelY += math.Cos(s.Yaw) * s.DriftDir * DriftSlideRate
	}
	s.X += s.VelX * dt
	s.Y += s.VelY * dt
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func moveToward(v, target, delta float64) float64 {
	if v > target {
		v -= delta
		if v < target {
			v = target
		}
	} else if v < target {
		v += delta
		if v > target {
			v = target
		}
	}
	return v
}
