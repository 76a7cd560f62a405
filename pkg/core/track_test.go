package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 100×100 的正方形参考线，周长 400 米
func squareTrack(t *testing.T) *Track {
	t.Helper()
	track, err := NewTrack([]TrackPoint{
		{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100},
	}, 3)
	require.NoError(t, err)
	return track
}

func TestNewTrackRejectsDegenerate(t *testing.T) {
	_, err := NewTrack([]TrackPoint{{X: 0, Y: 0}, {X: 1, Y: 0}}, 3)
	assert.ErrorIs(t, err, ErrDegenerateTrack)

	// 全部点重合：总长为零
	_, err = NewTrack([]TrackPoint{{}, {}, {}}, 3)
	assert.ErrorIs(t, err, ErrDegenerateTrack)
}

func TestTrackProjectOnReferenceLine(t *testing.T) {
	track := squareTrack(t)
	assert.InDelta(t, 400.0, track.Length(), 1e-9)

	assert.InDelta(t, 0.125, track.Project(50, 0), 1e-9)
	assert.InDelta(t, 0.375, track.Project(100, 50), 1e-9)
	assert.InDelta(t, 0.625, track.Project(50, 100), 1e-9)

	// 偏离参考线的点投到最近的段上
	assert.InDelta(t, 0.125, track.Project(50, -20), 1e-9)

	// 进度恒在 [0,1)
	frac := track.Project(0, 0)
	assert.GreaterOrEqual(t, frac, 0.0)
	assert.Less(t, frac, 1.0)
}

func TestTrackPointAtRoundTrip(t *testing.T) {
	track := squareTrack(t)

	p := track.PointAt(0.375)
	assert.InDelta(t, 100, p.X, 1e-9)
	assert.InDelta(t, 50, p.Y, 1e-9)

	// 超出 [0,1) 自动回绕
	p = track.PointAt(1.125)
	assert.InDelta(t, 50, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)
}

func TestTrackSpawn(t *testing.T) {
	track := squareTrack(t)
	x, y, yaw := track.Spawn()
	assert.Zero(t, x)
	assert.Zero(t, y)
	assert.InDelta(t, 0, yaw, 1e-9) // 第一段朝 +X
	assert.Equal(t, 3, track.TotalLaps())
}
