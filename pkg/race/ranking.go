package race

import "sort"

// Standing 一条已发布的排名
type Standing struct {
	ID         int32   `json:"id"`
	Name       string  `json:"name"`
	Rank       int     `json:"rank"`
	Lap        int     `json:"lap"`
	Progress   float64 `json:"progress"`
	Finished   bool    `json:"finished"`
	FinishTime int64   `json:"finishTime,omitempty"`
}

// Aggregator 排名聚合器
// 周期性地按累计进度排序全部参赛者，并做迟滞过滤：
// 同一个新名次要在连续两轮计算中出现才会发布，
// 单帧噪声（例如侧碰瞬间压低投影进度）不会让排名闪烁
type Aggregator struct {
	published map[int32]int // 已发布名次
	candidate map[int32]int // 上一轮计算出的候选名次
}

// NewAggregator 创建排名聚合器
func NewAggregator() *Aggregator {
	return &Aggregator{
		published: make(map[int32]int),
		candidate: make(map[int32]int),
	}
}

// Evaluate 重新计算排名并应用迟滞过滤，返回发布后的排名表
// 排序键：完赛者优先（按完赛时间升序），未完赛者按累计进度降序，
// 平局用 ID 保证确定性
func (a *Aggregator) Evaluate(racers []*RacerState) []Standing {
	sorted := make([]*RacerState, len(racers))
	copy(sorted, racers)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i], sorted[j]
		if ri.Finished != rj.Finished {
			return ri.Finished
		}
		if ri.Finished {
			if ri.FinishTime != rj.FinishTime {
				return ri.FinishTime < rj.FinishTime
			}
			return ri.ID < rj.ID
		}
		if ri.TotalProgress != rj.TotalProgress {
			return ri.TotalProgress > rj.TotalProgress
		}
		return ri.ID < rj.ID
	})

	alive := make(map[int32]struct{}, len(sorted))
	for idx, rs := range sorted {
		newRank := idx + 1
		alive[rs.ID] = struct{}{}

		prevPublished, seen := a.published[rs.ID]
		switch {
		case !seen:
			// 首次出现直接发布
			a.published[rs.ID] = newRank
		case newRank == prevPublished:
			// 无变化
		case a.candidate[rs.ID] == newRank:
			// 连续两轮得到同一个新名次，确认变更
			a.published[rs.ID] = newRank
		default:
			// 变更未确认，保留旧名次一个周期
		}
		a.candidate[rs.ID] = newRank
	}

	// 清理已离场的参赛者
	for id := range a.published {
		if _, ok := alive[id]; !ok {
			delete(a.published, id)
			delete(a.candidate, id)
		}
	}

	out := make([]Standing, 0, len(sorted))
	for _, rs := range sorted {
		rank := a.published[rs.ID]
		rs.Rank = rank
		out = append(out, Standing{
			ID:         rs.ID,
			Name:       rs.Name,
			Rank:       rank,
			Lap:        rs.Lap,
			Progress:   rs.TotalProgress,
			Finished:   rs.Finished,
			FinishTime: rs.FinishTime,
		})
	}
	return out
}
