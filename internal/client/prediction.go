package client

import (
	"golang.org/x/time/rate"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

// InputSender 预测引擎的出网口
// 预测引擎是核心里唯一接触传输层的组件；离线模式下 sender 为 nil，
// 引擎退化为纯本地模拟：不缓冲、不上报
type InputSender interface {
	SendInputWindow(inputs []core.Input)
}

// PendingInput 输入与其施加后的预测状态
// 缓冲始终按帧号升序；每次和解后帧号不大于已确认帧的条目被清除
type PendingInput struct {
	Input  core.Input
	Result core.KartState
}

// PredictorConfig 预测 / 和解参数
// 三档阈值是手感调参的产物，按名字暴露、可覆盖，不要推"物理正确"的值
type PredictorConfig struct {
	IgnoreDistSq float64 // 低于此值的偏差直接忽略
	SnapDistSq   float64 // 高于此值直接硬吸附
	BlendFactor  float64 // 中间档每次快照向纠正状态收敛的比例

	PendingCap     int // 待确认输入硬上限
	PendingSoftCap int // 和解前先裁到的软上限

	SendRate   float64 // 输入上报频率（Hz）
	SendWindow int     // 每次上报的输入滑动窗口
}

// DefaultPredictorConfig 默认预测配置
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		IgnoreDistSq:   ReconcileIgnoreDistSq,
		SnapDistSq:     ReconcileSnapDistSq,
		BlendFactor:    ReconcileBlendFactor,
		PendingCap:     PendingInputCap,
		PendingSoftCap: PendingInputSoftCap,
		SendRate:       InputSendRate,
		SendWindow:     InputSendWindow,
	}
}

// Predictor 本地车的预测 / 和解引擎
// 输入立即过物理核心作用到渲染状态（零感知延迟），同时进待确认缓冲；
// 权威快照到达时丢弃已确认输入、从权威基态重放剩余输入，
// 再按三档误差策略把渲染状态拉向纠正结果
type Predictor struct {
	state   core.KartState
	pending []PendingInput

	nextFrame     int32
	lastConfirmed int32

	sender  InputSender
	limiter *rate.Limiter
	cfg     PredictorConfig

	// 诊断信号：溢出截断发生的次数，静默恢复、不作为错误抛出
	truncations int
}

// NewPredictor 创建预测引擎；sender 为 nil 表示离线模式
func NewPredictor(initial core.KartState, sender InputSender, cfg PredictorConfig) *Predictor {
	return &Predictor{
		state:   initial,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), 1),
		cfg:     cfg,
	}
}

// State 当前渲染状态
func (p *Predictor) State() core.KartState { return p.state }

// SetState 重置渲染状态（重生 / 重连恢复）
func (p *Predictor) SetState(s core.KartState) {
	p.state = s
	p.pending = p.pending[:0]
}

// PendingCount 当前待确认输入数
func (p *Predictor) PendingCount() int { return len(p.pending) }

// Truncations 缓冲溢出截断发生的次数（诊断用）
func (p *Predictor) Truncations() int { return p.truncations }

// ProcessInput 处理一帧本地输入：
// 标帧号、立即预测、入缓冲、按节流频率上报，返回预测状态供渲染
func (p *Predictor) ProcessInput(throttle, steer float64, brake, drift, useItem bool, nowMs int64) core.KartState {
	p.nextFrame++
	in := core.Input{
		Frame:    p.nextFrame,
		Throttle: throttle,
		Steer:    steer,
		Brake:    brake,
		Drift:    drift,
		UseItem:  useItem,
		SentAt:   nowMs,
	}

	p.state = core.Update(p.state, in, core.FixedDeltaTime)

	if p.sender == nil {
		return p.state
	}

	p.pending = append(p.pending, PendingInput{Input: in, Result: p.state})
	p.truncate(p.cfg.PendingCap)

	// 上报节流与模拟帧率解耦：非阻塞检查，绝不等待
	if p.limiter.Allow() {
		p.sendWindow()
	}
	return p.state
}

// sendWindow 发送最近一段输入窗口，靠窗口重叠自愈丢包
func (p *Predictor) sendWindow() {
	start := 0
	if len(p.pending) > p.cfg.SendWindow {
		start = len(p.pending) - p.cfg.SendWindow
	}
	window := make([]core.Input, 0, len(p.pending)-start)
	for _, item := range p.pending[start:] {
		window = append(window, item.Input)
	}
	if len(window) > 0 {
		p.sender.SendInputWindow(window)
	}
}

// ProcessSnapshot 处理权威快照确认
// 过期 / 重复的确认直接丢弃；否则丢弃已确认输入，从权威基态
// 用同一个物理函数重放剩余输入，再按三档策略收敛渲染状态
func (p *Predictor) ProcessSnapshot(auth core.KartState, lastProcessedFrame int32) {
	if lastProcessedFrame <= p.lastConfirmed {
		return
	}
	p.lastConfirmed = lastProcessedFrame

	// 清除服务器已经计入的输入
	i := 0
	for i < len(p.pending) && p.pending[i].Input.Frame <= lastProcessedFrame {
		i++
	}
	if i > 0 {
		p.pending = append(p.pending[:0], p.pending[i:]...)
	}

	// 弱网下限制重放长度：先裁软上限
	p.truncate(p.cfg.PendingSoftCap)

	corrected := auth
	for idx := range p.pending {
		corrected = core.Update(corrected, p.pending[idx].Input, core.FixedDeltaTime)
		p.pending[idx].Result = corrected
	}

	p.converge(corrected)
}

// converge 三档误差策略：忽略 / 指数混合 / 硬吸附
func (p *Predictor) converge(corrected core.KartState) {
	distSq := p.state.PlanarDistanceSq(&corrected)

	switch {
	case distSq < p.cfg.IgnoreDistSq:
		// 浮点噪声量级：保留本地位姿，只采纳权威的圈数与状态字段
		pose := p.state
		p.state = corrected
		p.state.X, p.state.Y, p.state.Z = pose.X, pose.Y, pose.Z
		p.state.Yaw = pose.Yaw
		p.state.VelX, p.state.VelY = pose.VelX, pose.VelY
		p.state.Speed = pose.Speed

	case distSq > p.cfg.SnapDistSq:
		// 瞬移 / 复活 / 大幅滞后：硬吸附
		p.state = corrected

	default:
		// 持续小偏差：每次快照混合一部分，收敛且不显眼
		f := p.cfg.BlendFactor
		blended := corrected
		blended.X = p.state.X + (corrected.X-p.state.X)*f
		blended.Y = p.state.Y + (corrected.Y-p.state.Y)*f
		blended.Yaw = core.LerpAngle(p.state.Yaw, corrected.Yaw, f)
		blended.Speed = p.state.Speed + (corrected.Speed-p.state.Speed)*f
		p.state = blended
	}
}

// truncate 超限时丢弃最旧条目
func (p *Predictor) truncate(limit int) {
	if limit <= 0 || len(p.pending) <= limit {
		return
	}
	drop := len(p.pending) - limit
	p.pending = append(p.pending[:0], p.pending[drop:]...)
	p.truncations++
}
