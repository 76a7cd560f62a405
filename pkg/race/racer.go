package race

// RacerState 单个参赛者的比赛簿记
// 比赛开始时为所有参赛者创建，进度追踪器在每次位置更新时原地修改，
// 比赛会话结束时随注册表一起销毁
type RacerState struct {
	ID   int32
	Name string

	Rank        int     // 已发布名次（经过迟滞过滤）
	Lap         int     // 当前圈数，从 1 起
	LapProgress float64 // 单圈进度 [0,1)
	Stage       int     // 检查点阶段 0–3
	Distance    float64 // 累计行驶里程（米）

	// TotalProgress 单调累计进度：(Lap-1) + LapProgress
	// 除合法的圈界回绕或超过噪声阈值的倒车外不允许下降；
	// 完赛者被钉在哨兵值之上，排序时永远压过未完赛者
	TotalProgress float64

	Finished   bool
	FinishTime int64 // 完赛时刻（Unix 毫秒）

	// 追踪器内部量
	prevFrac        float64
	stageDistance   float64 // 进入当前阶段时的累计里程
	hasPrevPosition bool
	lastX, lastY    float64
}

// FinishedProgressSentinel 完赛哨兵：高于任何可能的未完赛进度
const FinishedProgressSentinel = 1 << 20

// NewRacerState 创建参赛者簿记
func NewRacerState(id int32, name string) *RacerState {
	return &RacerState{ID: id, Name: name, Lap: 1}
}
