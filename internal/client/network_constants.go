package client

// ===== 网络插值与预测配置（客户端专用）=====
const (
	// 插值缓冲延迟（毫秒）：远端车渲染时间滞后于本地时钟，
	// 正常抖动下两个真实快照几乎总能夹住渲染时刻，尽量少依赖外推
	// 值越大越平滑，但延迟感越强；通常 100ms 是较好的折中
	DefaultInterpolationDelayMs int64 = 100
	MinInterpolationDelayMs     int64 = 50
	MaxInterpolationDelayMs     int64 = 300

	// 快照缓冲窗口（毫秒）：按本地接收时间裁剪，只保留最近一段
	SnapshotWindowMs int64 = 2000

	// 航位推测上限（毫秒）：缺包时最多向前外推这么久，
	// 再久就停在外推终点，不再远离最后的已知事实
	ExtrapolationMaxMs int64 = 300

	// 远端静默清除（毫秒）：超过此时长没有任何包则整体移除
	RemoteTimeoutMs int64 = 3000

	// 渲染层指数平滑：每帧把上一渲染位姿向新算出的原始位姿收敛的比例
	RenderSmoothFactor = 0.35

	// 瞬移距离（米）：原始位姿一步跳过此距离时直接吸附，不做平滑
	TeleportDistance = 5.0
)

// ===== 预测 / 和解三档误差策略 =====
// 这些是实测调出来的手感参数，不是物理上"正确"的值
const (
	// 低于此平面距离平方的偏差直接忽略，避免浮点噪声造成的微抖
	ReconcileIgnoreDistSq = 0.01

	// 高于此平面距离平方直接硬吸附（瞬移 / 复活 / 大幅滞后）
	ReconcileSnapDistSq = 1.0

	// 两档之间每次快照到达时向纠正状态收敛的比例
	ReconcileBlendFactor = 0.25
)

// ===== 输入缓冲与上报节奏 =====
const (
	// 待确认输入上限（约 2 秒 @ 60 帧），溢出时先丢最旧
	PendingInputCap = 120

	// 软上限：和解重放前先裁到这个长度，限制持续弱网下的重放开销
	PendingInputSoftCap = 90

	// 输入上报频率（Hz），与本地模拟帧率解耦
	InputSendRate = 30

	// 每次上报携带的输入滑动窗口大小，丢包靠重叠窗口自愈
	InputSendWindow = 10
)
