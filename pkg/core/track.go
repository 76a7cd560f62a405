package core

import (
	"errors"
	"math"
)

// 赛道校验失败（点数不足或总长近似为零）
var ErrDegenerateTrack = errors.New("赛道参考线退化")

// TrackPoint 参考线上的一个点（平面坐标）
type TrackPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Track 封闭的赛道参考线
// 世界坐标投影到参考线上得到 [0,1) 的单圈进度标量，
// 进度追踪和排名都建立在这个标量之上
type Track struct {
	points  []TrackPoint
	cumLen  []float64 // cumLen[i] = 第 i 段起点处的累计弧长
	total   float64
	lapsCfg int
}

// NewTrack 用封闭折线创建赛道
// 首尾自动闭合；点数不足或长度退化时返回错误，
// 调用方必须拒绝在退化赛道上做进度追踪（报告零进度而不是传播 NaN）
func NewTrack(points []TrackPoint, totalLaps int) (*Track, error) {
	if len(points) < 3 {
		return nil, ErrDegenerateTrack
	}
	if totalLaps < 1 {
		totalLaps = 1
	}

	t := &Track{
		points:  points,
		cumLen:  make([]float64, len(points)),
		lapsCfg: totalLaps,
	}
	for i := range points {
		t.cumLen[i] = t.total
		next := points[(i+1)%len(points)]
		t.total += math.Hypot(next.X-points[i].X, next.Y-points[i].Y)
	}
	if t.total < 1e-6 {
		return nil, ErrDegenerateTrack
	}
	return t, nil
}

// Length 参考线总长（米）
func (t *Track) Length() float64 { return t.total }

// TotalLaps 比赛配置的总圈数
func (t *Track) TotalLaps() int { return t.lapsCfg }

// Points 参考线点列（握手时下发给客户端）
func (t *Track) Points() []TrackPoint { return t.points }

// Spawn 起点位姿：参考线第一个点，朝向第一段方向
func (t *Track) Spawn() (x, y, yaw float64) {
	p0 := t.points[0]
	p1 := t.points[1]
	return p0.X, p0.Y, math.Atan2(p1.Y-p0.Y, p1.X-p0.X)
}

// Project 将世界坐标投影到参考线，返回单圈进度 [0,1)
// 逐段求最近点，取距离最小的段；噪声位置也总能得到有界的进度值
func (t *Track) Project(x, y float64) float64 {
	bestDistSq := math.MaxFloat64
	bestArc := 0.0

	n := len(t.points)
	for i := 0; i < n; i++ {
		a := t.points[i]
		b := t.points[(i+1)%n]
		abx, aby := b.X-a.X, b.Y-a.Y
		segLenSq := abx*abx + aby*aby
		if segLenSq == 0 {
			continue
		}

		// 点在线段上的投影参数，夹在 [0,1]
		u := ((x-a.X)*abx + (y-a.Y)*aby) / segLenSq
		u = clamp(u, 0, 1)

		px, py := a.X+abx*u, a.Y+aby*u
		dx, dy := x-px, y-py
		distSq := dx*dx + dy*dy
		if distSq < bestDistSq {
			bestDistSq = distSq
			bestArc = t.cumLen[i] + math.Sqrt(segLenSq)*u
		}
	}

	frac := bestArc / t.total
	if frac >= 1 {
		frac = 0
	}
	return frac
}

// PointAt 进度标量对应的参考线坐标（巡线驾驶用）
func (t *Track) PointAt(frac float64) TrackPoint {
	frac = frac - math.Floor(frac)
	target := frac * t.total

	n := len(t.points)
	for i := n - 1; i >= 0; i-- {
		if t.cumLen[i] <= target {
			a := t.points[i]
			b := t.points[(i+1)%n]
			segLen := math.Hypot(b.X-a.X, b.Y-a.Y)
			if segLen == 0 {
				return a
			}
			u := (target - t.cumLen[i]) / segLen
			return TrackPoint{X: a.X + (b.X-a.X)*u, Y: a.Y + (b.Y-a.Y)*u}
		}
	}
	return t.points[0]
}
