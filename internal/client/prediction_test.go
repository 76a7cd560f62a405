package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

// fakeSender 记录预测引擎发出的输入窗口
type fakeSender struct {
	windows [][]core.Input
}

func (f *fakeSender) SendInputWindow(inputs []core.Input) {
	cp := make([]core.Input, len(inputs))
	copy(cp, inputs)
	f.windows = append(f.windows, cp)
}

func newTestPredictor(sender InputSender) *Predictor {
	cfg := DefaultPredictorConfig()
	cfg.SendRate = 1e9 // 测试里不节流
	return NewPredictor(core.NewKartState(0, 0, 0), sender, cfg)
}

func TestPredictorOfflineModeKeepsNoPending(t *testing.T) {
	p := newTestPredictor(nil)
	for i := 0; i < 10; i++ {
		p.ProcessInput(1, 0, false, false, false, 0)
	}
	assert.Zero(t, p.PendingCount())
	assert.Greater(t, p.State().Speed, 0.0)
}

func TestPredictorBuffersAndSendsWindows(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)

	for i := 0; i < 15; i++ {
		p.ProcessInput(1, 0, false, false, false, 0)
	}

	assert.Equal(t, 15, p.PendingCount())
	require.NotEmpty(t, sender.windows)
	last := sender.windows[len(sender.windows)-1]
	assert.LessOrEqual(t, len(last), InputSendWindow)
	assert.Equal(t, int32(15), last[len(last)-1].Frame)
}

func TestPredictorStaleConfirmDropped(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)
	for i := 0; i < 10; i++ {
		p.ProcessInput(1, 0, false, false, false, 0)
	}

	p.ProcessSnapshot(core.NewKartState(0, 0, 0), 5)
	require.Equal(t, 5, p.PendingCount())
	before := p.State()

	// 重复 / 过期的确认不做任何事
	var far core.KartState
	far.X = 500
	p.ProcessSnapshot(far, 5)
	p.ProcessSnapshot(far, 3)
	assert.Equal(t, before, p.State())
	assert.Equal(t, 5, p.PendingCount())
}

func TestPredictorIgnoreTierKeepsLocalPose(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)
	for i := 0; i < 10; i++ {
		p.ProcessInput(1, 0.3, false, false, false, 0)
	}
	local := p.State()

	// 权威端跑同一个物理函数，重放结果与本地预测逐位一致 → 偏差为零
	auth := core.NewKartState(0, 0, 0)
	for i := int32(1); i <= 6; i++ {
		auth = core.Update(auth, core.Input{Frame: i, Throttle: 1, Steer: 0.3}, core.FixedDeltaTime)
	}
	p.ProcessSnapshot(auth, 6)

	// 忽略档：本地位姿原样保留
	assert.Equal(t, local.X, p.State().X)
	assert.Equal(t, local.Y, p.State().Y)
	assert.Equal(t, local.Yaw, p.State().Yaw)
}

func TestPredictorIgnoreTierAdoptsAuthoritativeFields(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)
	for i := 0; i < 5; i++ {
		p.ProcessInput(1, 0, false, false, false, 0)
	}

	auth := core.NewKartState(0, 0, 0)
	for i := int32(1); i <= 5; i++ {
		auth = core.Update(auth, core.Input{Frame: i, Throttle: 1}, core.FixedDeltaTime)
	}
	auth.Lap = 2 // 权威端判定的过圈
	p.ProcessSnapshot(auth, 5)

	// 位姿归本地，圈数等裁决字段归权威
	assert.Equal(t, 2, p.State().Lap)
}

func TestPredictorSnapTierOnLargeDivergence(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)
	for i := 0; i < 10; i++ {
		p.ProcessInput(1, 0, false, false, false, 0)
	}

	// 权威基态在远处（被修正过的瞬移）：确认了全部输入，无剩余重放
	var auth core.KartState
	auth.X, auth.BoostFactor, auth.Lap = 50, 1.0, 1
	p.ProcessSnapshot(auth, 10)

	assert.Equal(t, 50.0, p.State().X)
	assert.Zero(t, p.PendingCount())
}

func TestPredictorBlendTierConvergesGradually(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)
	p.ProcessInput(0, 0, false, false, false, 0) // 静止一帧
	localX := p.State().X

	var auth core.KartState
	auth.X, auth.BoostFactor, auth.Lap = localX+0.5, 1.0, 1
	p.ProcessSnapshot(auth, 1)

	// 中间档：只混合一部分，不整帧跳变
	want := localX + (auth.X-localX)*ReconcileBlendFactor
	assert.InDelta(t, want, p.State().X, 1e-9)
}

func TestPredictorPendingTruncation(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)

	for i := 0; i < PendingInputCap+30; i++ {
		p.ProcessInput(1, 0, false, false, false, 0)
	}

	assert.LessOrEqual(t, p.PendingCount(), PendingInputCap)
	assert.Greater(t, p.Truncations(), 0)
}

func TestPredictorSetStateClearsPending(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPredictor(sender)
	for i := 0; i < 5; i++ {
		p.ProcessInput(1, 0, false, false, false, 0)
	}

	respawn := core.NewKartState(10, 20, 0)
	p.SetState(respawn)
	assert.Equal(t, respawn, p.State())
	assert.Zero(t, p.PendingCount())
}
