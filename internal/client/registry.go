package client

import "github.com/erlancarreira/nitrogame-sub001/pkg/protocol"

// RemoteKart 一辆远端车：快照缓冲是它状态的唯一持有者，
// 其他组件只能通过 RenderPose 读取
type RemoteKart struct {
	ID       int32
	Smoother *RemoteSmoother

	lastPacketMs int64
}

// RemoteRegistry 远端车注册表
// 生命周期绑定比赛会话：开赛构造、散场丢弃，按引用传给使用方。
// 只在模拟循环里访问，不加锁
type RemoteRegistry struct {
	karts map[int32]*RemoteKart
}

// NewRemoteRegistry 创建远端车注册表
func NewRemoteRegistry() *RemoteRegistry {
	return &RemoteRegistry{karts: make(map[int32]*RemoteKart)}
}

// ApplyReport 消费一条位置报告：入对应远端车的快照缓冲
// 未知 ID 自动建档（中途加入的玩家）
func (r *RemoteRegistry) ApplyReport(report *protocol.PositionReport, nowMs int64) {
	kart, ok := r.karts[report.PlayerID]
	if !ok {
		kart = &RemoteKart{ID: report.PlayerID, Smoother: NewRemoteSmoother()}
		r.karts[report.PlayerID] = kart
	}
	kart.lastPacketMs = nowMs

	snap := Snapshot{
		ServerTime:  report.ServerTime,
		ReceivedAt:  nowMs,
		X:           report.Position[0],
		Y:           report.Position[1],
		Yaw:         report.Rotation,
		Speed:       report.Speed,
		Lap:         report.Lap,
		LapProgress: report.LapProgress,
		Sequence:    report.Sequence,
	}
	if report.Velocity != nil {
		snap.VelX = report.Velocity[0]
		snap.VelY = report.Velocity[1]
		snap.HasVelocity = true
	}
	kart.Smoother.Buffer.Add(snap)
}

// Kart 按 ID 取远端车，不存在返回 nil
func (r *RemoteRegistry) Kart(id int32) *RemoteKart { return r.karts[id] }

// Remove 主动移除（玩家离开广播）
func (r *RemoteRegistry) Remove(id int32) { delete(r.karts, id) }

// Len 当前远端车数量
func (r *RemoteRegistry) Len() int { return len(r.karts) }

// SetInterpolationDelay 统一调整全部远端车的插值延迟（按 RTT）
func (r *RemoteRegistry) SetInterpolationDelay(delayMs int64) {
	for _, kart := range r.karts {
		kart.Smoother.SetInterpolationDelay(delayMs)
	}
}

// Purge 清除静默超时的远端车，返回被清除的 ID
func (r *RemoteRegistry) Purge(nowMs int64) []int32 {
	var gone []int32
	for id, kart := range r.karts {
		if nowMs-kart.lastPacketMs > RemoteTimeoutMs {
			gone = append(gone, id)
		}
	}
	for _, id := range gone {
		delete(r.karts, id)
	}
	return gone
}

// Poses 计算全部远端车本帧的渲染位姿
func (r *RemoteRegistry) Poses(nowMs int64) map[int32]Pose {
	out := make(map[int32]Pose, len(r.karts))
	for id, kart := range r.karts {
		if pose, ok := kart.Smoother.RenderPose(nowMs); ok {
			out[id] = pose
		}
	}
	return out
}
