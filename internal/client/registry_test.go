package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

func report(playerID int32, serverTime int64, x float64) *protocol.PositionReport {
	return &protocol.PositionReport{
		PlayerID:   playerID,
		Position:   [3]float64{x, 0, 0},
		ServerTime: serverTime,
	}
}

func TestRegistryAutoCreatesRemoteKarts(t *testing.T) {
	r := NewRemoteRegistry()
	r.ApplyReport(report(7, 1, 0), 1000)
	require.NotNil(t, r.Kart(7))
	assert.Equal(t, 1, r.Len())

	r.ApplyReport(report(8, 1, 5), 1000)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryPurgeSilentKarts(t *testing.T) {
	r := NewRemoteRegistry()
	r.ApplyReport(report(7, 1, 0), 1000)
	r.ApplyReport(report(8, 1, 0), 3500)

	gone := r.Purge(1000 + RemoteTimeoutMs + 1)
	require.Equal(t, []int32{int32(7)}, gone)
	assert.Nil(t, r.Kart(7))
	assert.NotNil(t, r.Kart(8))
}

func TestRegistryReportCarriesVelocity(t *testing.T) {
	r := NewRemoteRegistry()
	rep := report(7, 1, 10)
	rep.Velocity = &[2]float64{3, 4}
	r.ApplyReport(rep, 1000)

	// 报文速度直接进入外推：渲染时刻晚于快照即可观察到
	pose, ok := r.Kart(7).Smoother.Buffer.StateAt(1100)
	require.True(t, ok)
	assert.InDelta(t, 10+3*0.1, pose.X, 1e-9)
}
