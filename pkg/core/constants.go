package core

// 模拟帧率
const (
	TPS            = 60
	FixedDeltaTime = 1.0 / TPS
)

// 车辆基础参数（米 / 秒制）
const (
	KartMaxSpeed     = 30.0 // 基础最高速度
	KartAcceleration = 18.0 // 油门加速度
	KartBrakeDecel   = 40.0 // 刹车减速度
	KartDrag         = 6.0  // 松油门时的自然减速
	KartReverseMax   = 0.4  // 倒车速度上限（相对最高速度）

	KartSteerRate         = 2.4  // 转向角速度（弧度/秒）
	KartSteerHighSpeedMin = 0.45 // 满速时保留的转向比例
)

// 漂移配置
// 漂移期间车头角度锁定在入弯角，侧滑项叠加到速度向量；
// 按住时长决定释放时的加速档位
const (
	DriftMinSpeed  = 12.0 // 低于此速度不进入漂移
	DriftSlideRate = 6.5  // 侧滑速度（米/秒）

	DriftTier1Seconds = 0.8
	DriftTier2Seconds = 1.5
	DriftTier3Seconds = 2.5
)

// 漂移释放加速（按档位索引）
var (
	driftBoostFactor   = [4]float64{1.0, 1.15, 1.25, 1.40}
	driftBoostDuration = [4]float64{0, 0.8, 1.2, 1.8}
)

// 道具与危险状态
const (
	StarSpeedFactor = 1.30 // 星星期间速度上限倍率
	StarDuration    = 6.0

	OilSlipDuration    = 1.2
	OilSlipSpeedFactor = 0.45 // 打滑期间速度缩放

	SpinOutDuration = 1.5

	// 碰撞回写：外部刚体引擎返回的速度明显低于指令速度时视为碰撞
	CollisionSpeedRatio = 0.85
)
