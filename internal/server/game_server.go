package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

// Config 服务器配置
type Config struct {
	Addr      string
	TotalLaps int
	Track     []core.TrackPoint // 空则使用内置默认赛道
}

// GameServer 比赛服务器
// 同一地址同时监听 KCP 与 TCP，连接层解码消息后交给房间管理器
type GameServer struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger
	wg     sync.WaitGroup

	cfg       Config
	track     *core.Track
	rooms     *RoomManager
	listeners []ServerListener
}

// NewGameServer 创建比赛服务器
func NewGameServer(cfg Config, log *zap.SugaredLogger) (*GameServer, error) {
	points := cfg.Track
	if len(points) == 0 {
		points = DefaultTrackPoints()
	}
	if cfg.TotalLaps < 1 {
		cfg.TotalLaps = 3
	}

	track, err := core.NewTrack(points, cfg.TotalLaps)
	if err != nil {
		return nil, fmt.Errorf("构造赛道失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &GameServer{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		cfg:    cfg,
		track:  track,
	}
	s.rooms = NewRoomManager(ctx, track, cfg.TotalLaps, log, &s.wg)
	return s, nil
}

// Start 开始监听并接收连接（非阻塞）
func (s *GameServer) Start() error {
	listeners, err := newDualListeners(s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listeners = listeners

	for _, l := range listeners {
		s.wg.Add(1)
		go s.acceptLoop(l)
		s.log.Infow("开始监听", "addr", l.Addr().String(), "network", l.Addr().Network())
	}
	return nil
}

// Shutdown 优雅关闭：停止接收、关闭房间、等待全部协程退出
func (s *GameServer) Shutdown() {
	s.log.Infow("服务器关闭中")
	for _, l := range s.listeners {
		_ = l.Close()
	}
	s.rooms.Shutdown()
	s.cancel()
	s.wg.Wait()
	s.log.Infow("服务器已关闭")
}

// Wait 阻塞直到服务器停止
func (s *GameServer) Wait() {
	<-s.ctx.Done()
	s.wg.Wait()
}

func (s *GameServer) acceptLoop(l ServerListener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warnw("接收连接失败", "err", err)
			continue
		}

		c := NewConnection(conn, s, s.log)
		s.wg.Add(1)
		go c.Handle(s.ctx, &s.wg)
	}
}

// ========== 连接层回调 ==========

func (s *GameServer) handleJoinRequest(c *Connection, ev JoinEvent) error {
	return s.rooms.Join(c, ev)
}

func (s *GameServer) handleClientInput(ev *InputEvent) {
	s.rooms.EnqueueInput(ev)
}

// handleReconnect 验证会话令牌并把新连接顶回原玩家槽位
func (s *GameServer) handleReconnect(c *Connection, token string) error {
	playerID, raceID, err := VerifySessionToken(token)
	if err != nil {
		s.sendReconnectRejected(c, "会话令牌无效或已过期")
		return fmt.Errorf("验证会话令牌失败: %w", err)
	}

	resp, err := s.rooms.Reconnect(c, playerID, raceID)
	if err != nil {
		s.sendReconnectRejected(c, err.Error())
		return err
	}

	pkt, err := protocol.NewReconnectResponsePacket(resp)
	if err != nil {
		return err
	}
	data, err := protocol.MarshalPacket(pkt)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (s *GameServer) handleFinishNotice(roomID string, ev *FinishEvent) {
	s.rooms.EnqueueFinish(roomID, ev)
}

func (s *GameServer) currentFrame(roomID string) int32 {
	return s.rooms.CurrentFrame(roomID)
}

func (s *GameServer) removePlayer(playerID int32, roomID string) {
	s.rooms.Leave(playerID, roomID)
}

func (s *GameServer) sendReconnectRejected(c *Connection, reason string) {
	pkt, err := protocol.NewReconnectResponsePacket(&protocol.ReconnectResponse{
		Success:      false,
		ErrorMessage: reason,
	})
	if err != nil {
		return
	}
	data, err := protocol.MarshalPacket(pkt)
	if err != nil {
		return
	}
	_ = c.Send(data)
}

// DefaultTrackPoints 内置默认赛道：椭圆参考线，周长约 630 米
func DefaultTrackPoints() []core.TrackPoint {
	const (
		segments = 48
		radiusX  = 120.0
		radiusY  = 80.0
	)
	points := make([]core.TrackPoint, 0, segments)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / segments
		sin, cos := math.Sincos(theta)
		points = append(points, core.TrackPoint{X: radiusX * cos, Y: radiusY * sin})
	}
	return points
}
