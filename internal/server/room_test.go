package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

// fakeSession 假连接：记录房间发出的所有数据包
type fakeSession struct {
	playerID int32
	roomID   string
	sent     [][]byte
	closed   bool
}

func (f *fakeSession) ID() int32      { return f.playerID }
func (f *fakeSession) RoomID() string { return f.roomID }
func (f *fakeSession) Send(data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}
func (f *fakeSession) Close()                { f.closed = true }
func (f *fakeSession) CloseWithoutNotify()   { f.closed = true }
func (f *fakeSession) SetPlayerID(id int32)  { f.playerID = id }
func (f *fakeSession) SetRoomID(id string)   { f.roomID = id }

func (f *fakeSession) packetTypes(t *testing.T) []protocol.MessageType {
	t.Helper()
	types := make([]protocol.MessageType, 0, len(f.sent))
	for _, data := range f.sent {
		pkt, err := protocol.UnmarshalPacket(data)
		require.NoError(t, err)
		types = append(types, pkt.Type)
	}
	return types
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	track, err := core.NewTrack(DefaultTrackPoints(), 3)
	require.NoError(t, err)
	return NewRoom(context.Background(), "t", track, 3, zap.NewNop().Sugar())
}

// join 直接驱动房间协程内部的处理函数（测试不起协程）
func join(t *testing.T, r *Room, sess *fakeSession, name string) {
	t.Helper()
	respCh := make(chan error, 1)
	r.handleJoin(joinRequest{sess: sess, req: JoinEvent{PlayerName: name}, respCh: respCh})
	require.NoError(t, <-respCh)
}

func TestRoomJoinHandshake(t *testing.T) {
	r := newTestRoom(t)
	sess := &fakeSession{playerID: -1}
	join(t, r, sess, "racer")

	assert.Equal(t, int32(1), sess.ID())
	assert.Equal(t, "t", sess.RoomID())
	assert.Equal(t, StateCountdown, r.state)
	assert.Equal(t, int32(1), r.PlayerCount())

	// 第一包是加入响应：出生位姿、赛道和会话令牌
	pkt, err := protocol.UnmarshalPacket(sess.sent[0])
	require.NoError(t, err)
	resp, err := protocol.ParseJoinResponse(pkt)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(1), resp.PlayerID)
	assert.Equal(t, 3, resp.TotalLaps)
	assert.Equal(t, ServerTPS, resp.TPS)
	assert.NotEmpty(t, resp.SessionToken)
	assert.NotEmpty(t, resp.Track)

	// 随后收到起跑时刻
	assert.Contains(t, sess.packetTypes(t), protocol.TypeRaceStart)
}

func TestRoomJoinAnnouncesPlayers(t *testing.T) {
	r := newTestRoom(t)
	first := &fakeSession{playerID: -1}
	second := &fakeSession{playerID: -1}
	join(t, r, first, "a")
	join(t, r, second, "b")

	// 老玩家收到新人广播，新人收到老玩家名单
	assert.Contains(t, first.packetTypes(t), protocol.TypePlayerJoin)
	assert.Contains(t, second.packetTypes(t), protocol.TypePlayerJoin)

	// 出生位姿互相错开
	assert.NotEqual(t, r.players[1].kart.X, r.players[2].kart.X)
}

func TestRoomJoinRejectsWhenFull(t *testing.T) {
	r := newTestRoom(t)
	for i := 0; i < MaxPlayers; i++ {
		join(t, r, &fakeSession{playerID: -1}, "p")
	}

	respCh := make(chan error, 1)
	r.handleJoin(joinRequest{sess: &fakeSession{playerID: -1}, req: JoinEvent{PlayerName: "late"}, respCh: respCh})
	assert.Error(t, <-respCh)
}

func TestRoomInputMergeDedupAndOrder(t *testing.T) {
	r := newTestRoom(t)
	sess := &fakeSession{playerID: -1}
	join(t, r, sess, "racer")
	r.state = StateRunning

	frames := func(msgs ...int32) []protocol.InputFrameMsg {
		out := make([]protocol.InputFrameMsg, len(msgs))
		for i, f := range msgs {
			out[i] = protocol.InputFrameMsg{Frame: f, Throttle: 1}
		}
		return out
	}

	r.handleInput(&InputEvent{PlayerID: 1, Inputs: frames(1, 2, 3)})
	// 滑动窗口重叠 + 乱序到达：只接受未见过的帧，保持升序
	r.handleInput(&InputEvent{PlayerID: 1, Inputs: frames(2, 3, 5)})
	r.handleInput(&InputEvent{PlayerID: 1, Inputs: frames(4)})

	slot := r.players[1]
	require.Len(t, slot.pending, 5)
	for i, in := range slot.pending {
		assert.Equal(t, int32(i+1), in.Frame)
	}
}

func TestRoomAdvanceAppliesBoundedInputsPerTick(t *testing.T) {
	r := newTestRoom(t)
	sess := &fakeSession{playerID: -1}
	join(t, r, sess, "racer")
	r.state = StateRunning

	inputs := make([]protocol.InputFrameMsg, 5)
	for i := range inputs {
		inputs[i] = protocol.InputFrameMsg{Frame: int32(i + 1), Throttle: 1}
	}
	r.handleInput(&InputEvent{PlayerID: 1, Inputs: inputs})

	slot := r.players[1]
	r.advanceSimulation(time.Now())
	// 单 tick 限量补追，不会一口气吃完积压
	assert.Equal(t, int32(maxInputsPerTick), slot.lastProcessedFrame)
	assert.Len(t, slot.pending, 5-maxInputsPerTick)

	r.advanceSimulation(time.Now())
	assert.Equal(t, int32(5), slot.lastProcessedFrame)
	assert.Greater(t, slot.kart.Speed, 0.0)

	// 没有输入时空滑行，模拟不停摆
	before := slot.kart
	r.advanceSimulation(time.Now())
	assert.Equal(t, int32(5), slot.lastProcessedFrame)
	assert.NotEqual(t, before.Speed, slot.kart.Speed)
}

func TestRoomStaleInputDropped(t *testing.T) {
	r := newTestRoom(t)
	sess := &fakeSession{playerID: -1}
	join(t, r, sess, "racer")
	r.state = StateRunning

	slot := r.players[1]
	slot.lastProcessedFrame = 10

	r.handleInput(&InputEvent{PlayerID: 1, Inputs: []protocol.InputFrameMsg{
		{Frame: 8}, {Frame: 10}, {Frame: 11},
	}})
	require.Len(t, slot.pending, 1)
	assert.Equal(t, int32(11), slot.pending[0].Frame)
}

func TestRoomFinishDeclarationEndsRace(t *testing.T) {
	r := newTestRoom(t)
	sess := &fakeSession{playerID: -1}
	join(t, r, sess, "racer")
	r.state = StateRunning

	r.handleFinish(&FinishEvent{PlayerID: 1, FinishTime: 7777})
	rs := r.session.Racer(1)
	require.True(t, rs.Finished)
	assert.Equal(t, int64(7777), rs.FinishTime)
	assert.Contains(t, sess.packetTypes(t), protocol.TypeFinishNotice)

	// 唯一的参赛者完赛 → 比赛收束并广播最终排名
	r.checkRaceOver()
	assert.Equal(t, StateEnding, r.state)
	assert.Contains(t, sess.packetTypes(t), protocol.TypeRaceOver)
}

func TestRoomReconnectRebindsSession(t *testing.T) {
	r := newTestRoom(t)
	old := &fakeSession{playerID: -1}
	join(t, r, old, "racer")

	fresh := &fakeSession{playerID: -1}
	respCh := make(chan *protocol.ReconnectResponse, 1)
	r.handleReconnect(reconnectRequest{sess: fresh, playerID: 1, respCh: respCh})

	resp := <-respCh
	require.True(t, resp.Success)
	assert.Equal(t, int32(1), resp.PlayerID)
	assert.True(t, old.closed)
	assert.Same(t, fresh, r.players[1].sess.(*fakeSession))

	// 未知玩家的重连被拒绝
	respCh = make(chan *protocol.ReconnectResponse, 1)
	r.handleReconnect(reconnectRequest{sess: fresh, playerID: 99, respCh: respCh})
	assert.False(t, (<-respCh).Success)
}
