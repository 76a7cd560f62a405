package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func racerWithProgress(id int32, name string, progress float64) *RacerState {
	rs := NewRacerState(id, name)
	rs.TotalProgress = progress
	return rs
}

func rankOf(standings []Standing, id int32) int {
	for _, s := range standings {
		if s.ID == id {
			return s.Rank
		}
	}
	return 0
}

func TestRankingHysteresis(t *testing.T) {
	agg := NewAggregator()
	a := racerWithProgress(1, "a", 2.0)
	b := racerWithProgress(2, "b", 1.0)
	c := racerWithProgress(3, "c", 0.5)
	racers := []*RacerState{a, b, c}

	// 首轮直接发布
	out := agg.Evaluate(racers)
	require.Equal(t, 1, rankOf(out, 1))
	require.Equal(t, 2, rankOf(out, 2))
	require.Equal(t, 3, rankOf(out, 3))

	// b 反超 a：第一轮只记候选，发布名次不动
	a.TotalProgress, b.TotalProgress = 1.0, 2.0
	out = agg.Evaluate(racers)
	assert.Equal(t, 1, rankOf(out, 1))
	assert.Equal(t, 2, rankOf(out, 2))

	// 连续第二轮相同结果：确认变更
	out = agg.Evaluate(racers)
	assert.Equal(t, 2, rankOf(out, 1))
	assert.Equal(t, 1, rankOf(out, 2))
	assert.Equal(t, 3, rankOf(out, 3))
}

func TestRankingSingleFrameNoiseFiltered(t *testing.T) {
	agg := NewAggregator()
	a := racerWithProgress(1, "a", 2.0)
	b := racerWithProgress(2, "b", 1.9)
	racers := []*RacerState{a, b}

	agg.Evaluate(racers)

	// 单帧噪声压低 a 的进度，随即恢复：发布名次全程不闪烁
	a.TotalProgress = 1.5
	out := agg.Evaluate(racers)
	assert.Equal(t, 1, rankOf(out, 1))

	a.TotalProgress = 2.0
	out = agg.Evaluate(racers)
	assert.Equal(t, 1, rankOf(out, 1))
	assert.Equal(t, 2, rankOf(out, 2))
}

func TestFinishedRacersPinnedAhead(t *testing.T) {
	agg := NewAggregator()
	a := racerWithProgress(1, "a", 2.9) // 领先但未完赛
	b := racerWithProgress(2, "b", FinishedProgressSentinel)
	b.Finished = true
	b.FinishTime = 9000
	c := racerWithProgress(3, "c", FinishedProgressSentinel)
	c.Finished = true
	c.FinishTime = 8000

	out := agg.Evaluate([]*RacerState{a, b, c})

	// 完赛者按完赛时间排序，压过任何未完赛进度
	assert.Equal(t, 1, rankOf(out, 3))
	assert.Equal(t, 2, rankOf(out, 2))
	assert.Equal(t, 3, rankOf(out, 1))
}

func TestRankingDeterministicTieBreak(t *testing.T) {
	agg := NewAggregator()
	a := racerWithProgress(7, "a", 1.0)
	b := racerWithProgress(3, "b", 1.0)

	out := agg.Evaluate([]*RacerState{a, b})
	assert.Equal(t, 1, rankOf(out, 3)) // 平局按 ID
	assert.Equal(t, 2, rankOf(out, 7))
}

func TestRankingCleansDepartedRacers(t *testing.T) {
	agg := NewAggregator()
	a := racerWithProgress(1, "a", 2.0)
	b := racerWithProgress(2, "b", 1.0)
	agg.Evaluate([]*RacerState{a, b})

	out := agg.Evaluate([]*RacerState{b})
	require.Len(t, out, 1)
	// 离场者让位后，剩余参赛者经确认期后补位
	out = agg.Evaluate([]*RacerState{b})
	assert.Equal(t, 1, rankOf(out, 2))
}
