package race

import (
	"time"

	"github.com/google/uuid"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

// 远端参赛者静默超时：超过此时长没有任何位置更新即视为离场
const SilenceTimeout = 3 * time.Second

// Session 比赛会话注册表
// 持有本场比赛全部参赛者的 RacerState、进度追踪器和排名聚合器；
// 比赛开始时构造、结束时整体丢弃，按引用传给使用方而不是全局单例。
// 不做内部加锁：约定只在单一模拟循环里访问
type Session struct {
	ID      string
	tracker *Tracker
	agg     *Aggregator

	racers   map[int32]*RacerState
	order    []int32 // 加入顺序，保证遍历确定性
	lastSeen map[int32]time.Time
}

// NewSession 创建比赛会话
func NewSession(track *core.Track, cfg TrackerConfig) *Session {
	return &Session{
		ID:       uuid.NewString(),
		tracker:  NewTracker(track, cfg),
		agg:      NewAggregator(),
		racers:   make(map[int32]*RacerState),
		lastSeen: make(map[int32]time.Time),
	}
}

// AddRacer 注册参赛者
func (s *Session) AddRacer(id int32, name string, now time.Time) *RacerState {
	if rs, ok := s.racers[id]; ok {
		return rs
	}
	rs := NewRacerState(id, name)
	s.racers[id] = rs
	s.order = append(s.order, id)
	s.lastSeen[id] = now
	return rs
}

// RemoveRacer 注销参赛者
func (s *Session) RemoveRacer(id int32) {
	delete(s.racers, id)
	delete(s.lastSeen, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Racer 按 ID 取参赛者状态，不存在返回 nil
func (s *Session) Racer(id int32) *RacerState {
	return s.racers[id]
}

// Racers 按加入顺序返回全部参赛者
func (s *Session) Racers() []*RacerState {
	out := make([]*RacerState, 0, len(s.order))
	for _, id := range s.order {
		if rs, ok := s.racers[id]; ok {
			out = append(out, rs)
		}
	}
	return out
}

// UpdatePosition 用一次位置更新推进指定参赛者的进度
func (s *Session) UpdatePosition(id int32, x, y, speed float64, now time.Time) {
	rs, ok := s.racers[id]
	if !ok {
		return
	}
	s.lastSeen[id] = now
	s.tracker.UpdatePosition(rs, x, y, speed, now.UnixMilli())
}

// MarkFinished 远端完赛通知：绕过常规进度管线，直接钉为完赛
func (s *Session) MarkFinished(id int32, finishTimeMs int64) {
	rs, ok := s.racers[id]
	if !ok {
		return
	}
	if rs.Finished {
		return
	}
	rs.Finished = true
	rs.FinishTime = finishTimeMs
	rs.TotalProgress = FinishedProgressSentinel
}

// PurgeSilent 清除静默超时的参赛者，返回被清除的 ID
func (s *Session) PurgeSilent(now time.Time) []int32 {
	var gone []int32
	for id, seen := range s.lastSeen {
		if now.Sub(seen) > SilenceTimeout {
			gone = append(gone, id)
		}
	}
	for _, id := range gone {
		s.RemoveRacer(id)
	}
	return gone
}

// Touch 记录参赛者最近一次活动时刻
func (s *Session) Touch(id int32, now time.Time) {
	if _, ok := s.racers[id]; ok {
		s.lastSeen[id] = now
	}
}

// Standings 重新计算并返回当前排名（含迟滞过滤）
func (s *Session) Standings() []Standing {
	return s.agg.Evaluate(s.Racers())
}

// AllFinished 是否所有参赛者都已完赛
func (s *Session) AllFinished() bool {
	if len(s.racers) == 0 {
		return false
	}
	for _, rs := range s.racers {
		if !rs.Finished {
			return false
		}
	}
	return true
}
