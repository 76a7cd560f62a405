package protocol

import "github.com/erlancarreira/nitrogame-sub001/pkg/core"

// ========== core 与线上形态互转 ==========

// CoreKartToMsg 车辆物理状态 → 线上形态
func CoreKartToMsg(s *core.KartState) KartStateMsg {
	return KartStateMsg{
		X:            s.X,
		Y:            s.Y,
		Z:            s.Z,
		Yaw:          s.Yaw,
		Speed:        s.Speed,
		VelX:         s.VelX,
		VelY:         s.VelY,
		SteerAngle:   s.SteerAngle,
		Lap:          s.Lap,
		LapProgress:  s.LapProgress,
		Drifting:     s.Drifting,
		DriftDir:     s.DriftDir,
		DriftTimer:   s.DriftTimer,
		DriftLockYaw: s.DriftLockYaw,
		BoostFactor:  s.BoostFactor,
		BoostTimer:   s.BoostTimer,
		Invincible:   s.Invincible,
		StarTimer:    s.StarTimer,
		OilSlip:      s.OilSlip,
		OilTimer:     s.OilTimer,
		SpinOut:      s.SpinOut,
		SpinTimer:    s.SpinTimer,
	}
}

// MsgToCoreKart 线上形态 → 车辆物理状态
// BoostFactor 为零值时归一到 1.0，保证可直接作为重放基态
func MsgToCoreKart(m *KartStateMsg) core.KartState {
	s := core.KartState{
		X:            m.X,
		Y:            m.Y,
		Z:            m.Z,
		Yaw:          m.Yaw,
		Speed:        m.Speed,
		VelX:         m.VelX,
		VelY:         m.VelY,
		SteerAngle:   m.SteerAngle,
		Lap:          m.Lap,
		LapProgress:  m.LapProgress,
		Drifting:     m.Drifting,
		DriftDir:     m.DriftDir,
		DriftTimer:   m.DriftTimer,
		DriftLockYaw: m.DriftLockYaw,
		BoostFactor:  m.BoostFactor,
		BoostTimer:   m.BoostTimer,
		Invincible:   m.Invincible,
		StarTimer:    m.StarTimer,
		OilSlip:      m.OilSlip,
		OilTimer:     m.OilTimer,
		SpinOut:      m.SpinOut,
		SpinTimer:    m.SpinTimer,
	}
	if s.BoostFactor == 0 {
		s.BoostFactor = 1.0
	}
	if s.Lap == 0 {
		s.Lap = 1
	}
	return s
}

// CoreInputToMsg 输入帧 → 线上形态
func CoreInputToMsg(in core.Input) InputFrameMsg {
	return InputFrameMsg{
		Frame:    in.Frame,
		Throttle: in.Throttle,
		Steer:    in.Steer,
		Brake:    in.Brake,
		Drift:    in.Drift,
		UseItem:  in.UseItem,
		SentAt:   in.SentAt,
	}
}

// MsgToCoreInput 线上形态 → 输入帧
func MsgToCoreInput(m InputFrameMsg) core.Input {
	return core.Input{
		Frame:    m.Frame,
		Throttle: m.Throttle,
		Steer:    m.Steer,
		Brake:    m.Brake,
		Drift:    m.Drift,
		UseItem:  m.UseItem,
		SentAt:   m.SentAt,
	}
}

// TrackPointsToMsg 赛道参考线 → 线上形态
func TrackPointsToMsg(points []core.TrackPoint) []TrackPointMsg {
	out := make([]TrackPointMsg, len(points))
	for i, p := range points {
		out[i] = TrackPointMsg{X: p.X, Y: p.Y}
	}
	return out
}

// MsgToTrackPoints 线上形态 → 赛道参考线
func MsgToTrackPoints(points []TrackPointMsg) []core.TrackPoint {
	out := make([]core.TrackPoint, len(points))
	for i, p := range points {
		out[i] = core.TrackPoint{X: p.X, Y: p.Y}
	}
	return out
}
