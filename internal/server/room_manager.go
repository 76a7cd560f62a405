package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

// DefaultRoomID 未指定比赛 ID 时加入的默认房间
const DefaultRoomID = "default"

// 空房间回收周期
const roomCleanupInterval = 30 * time.Second

// RoomManager 管理全部比赛房间
type RoomManager struct {
	ctx context.Context
	log *zap.SugaredLogger
	wg  *sync.WaitGroup

	track     *core.Track
	totalLaps int

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRoomManager 创建房间管理器，所有房间共用同一条赛道配置
func NewRoomManager(ctx context.Context, track *core.Track, totalLaps int, log *zap.SugaredLogger, wg *sync.WaitGroup) *RoomManager {
	m := &RoomManager{
		ctx:       ctx,
		log:       log,
		wg:        wg,
		track:     track,
		totalLaps: totalLaps,
		rooms:     make(map[string]*Room),
	}

	wg.Add(1)
	go m.cleanupLoop()
	return m
}

// getOrCreate 取出或创建房间
func (m *RoomManager) getOrCreate(roomID string) *Room {
	if roomID == "" {
		roomID = DefaultRoomID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[roomID]; ok {
		return room
	}

	room := NewRoom(m.ctx, roomID, m.track, m.totalLaps, m.log)
	m.rooms[roomID] = room

	m.wg.Add(1)
	go room.Run(m.wg)

	m.log.Infow("创建房间", "roomID", roomID)
	return room
}

// Room 按 ID 查房间，不存在返回 nil
func (m *RoomManager) Room(roomID string) *Room {
	if roomID == "" {
		roomID = DefaultRoomID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID]
}

// Join 把一条连接加入指定房间
func (m *RoomManager) Join(sess Session, ev JoinEvent) error {
	room := m.getOrCreate(ev.RaceID)
	return room.Join(sess, ev)
}

// Reconnect 把一条新连接重新绑定到房间内的旧玩家
func (m *RoomManager) Reconnect(sess Session, playerID int32, roomID string) (*protocol.ReconnectResponse, error) {
	room := m.Room(roomID)
	if room == nil {
		return nil, fmt.Errorf("房间 %s 不存在", roomID)
	}
	return room.Reconnect(sess, playerID)
}

// EnqueueInput 把输入投递到玩家所在房间
func (m *RoomManager) EnqueueInput(ev *InputEvent) {
	if room := m.Room(ev.RaceID); room != nil {
		room.EnqueueInput(ev)
	}
}

// EnqueueFinish 把完赛申报投递到房间
func (m *RoomManager) EnqueueFinish(roomID string, ev *FinishEvent) {
	if room := m.Room(roomID); room != nil {
		room.EnqueueFinish(ev)
	}
}

// Leave 玩家离开房间
func (m *RoomManager) Leave(playerID int32, roomID string) {
	if room := m.Room(roomID); room != nil {
		room.Leave(playerID)
	}
}

// CurrentFrame 房间当前帧号，房间不存在返回 0
func (m *RoomManager) CurrentFrame(roomID string) int32 {
	if room := m.Room(roomID); room != nil {
		return room.CurrentFrame()
	}
	return 0
}

// Shutdown 关闭全部房间
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, room := range m.rooms {
		room.Shutdown()
	}
}

// cleanupLoop 周期回收空房间（默认房间常驻）
func (m *RoomManager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(roomCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			for id, room := range m.rooms {
				if id == DefaultRoomID {
					continue
				}
				if room.PlayerCount() == 0 {
					room.Shutdown()
					delete(m.rooms, id)
					m.log.Infow("回收空房间", "roomID", id)
				}
			}
			m.mu.Unlock()
		}
	}
}
