package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
)

func TestPacketEnvelopeRoundTrip(t *testing.T) {
	pkt, err := NewJoinRequestPacket("racer", "red", "room-1")
	require.NoError(t, err)

	data, err := MarshalPacket(pkt)
	require.NoError(t, err)

	decoded, err := UnmarshalPacket(data)
	require.NoError(t, err)
	require.Equal(t, TypeJoinRequest, decoded.Type)

	req, err := ParseJoinRequest(decoded)
	require.NoError(t, err)
	assert.Equal(t, "racer", req.PlayerName)
	assert.Equal(t, "room-1", req.RaceID)
}

func TestParseRejectsMismatchedType(t *testing.T) {
	pkt, err := NewPingPacket(123)
	require.NoError(t, err)

	_, err = ParseJoinRequest(pkt)
	assert.Error(t, err)
}

func TestSnapshotConfirmCarriesReplayBase(t *testing.T) {
	state := core.NewKartState(5, 7, 0.3)
	state.Speed = 22
	state.Drifting = true
	state.DriftTimer = 1.1

	pkt, err := NewSnapshotConfirmPacket(42, CoreKartToMsg(&state), 99)
	require.NoError(t, err)
	confirm, err := ParseSnapshotConfirm(pkt)
	require.NoError(t, err)

	assert.Equal(t, int32(42), confirm.LastProcessedFrame)
	restored := MsgToCoreKart(&confirm.State)
	// 漂移等瞬态字段必须完整存活，权威快照才能作为重放基态
	assert.Equal(t, state, restored)
}

func TestMsgToCoreKartNormalizesZeroValues(t *testing.T) {
	restored := MsgToCoreKart(&KartStateMsg{X: 1})
	assert.Equal(t, 1.0, restored.BoostFactor)
	assert.Equal(t, 1, restored.Lap)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"ping","payload":{"clientTime":1}}`)

	require.NoError(t, WriteFrame(&buf, payload))
	require.NoError(t, WriteFrame(&buf, []byte("second")))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
