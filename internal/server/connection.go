package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

const (
	readTimeout  = 5 * time.Second // 读取超时
	writeTimeout = 1 * time.Second // 写入超时

	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 15 * time.Second
)

var ErrSendQueueFull = errors.New("发送队列满")

// Connection 表示一个客户端连接
type Connection struct {
	conn   net.Conn
	server *GameServer
	log    *zap.SugaredLogger

	playerID atomic.Int32
	roomID   atomic.Value // string

	// 发送队列
	sendChan chan []byte
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex

	lastRecvTime atomic.Value
	rtt          atomic.Int64
}

// NewConnection 创建新连接
func NewConnection(conn net.Conn, server *GameServer, log *zap.SugaredLogger) *Connection {
	c := &Connection{
		conn:     conn,
		server:   server,
		log:      log,
		sendChan: make(chan []byte, 256),
		closeCh:  make(chan struct{}),
	}
	c.playerID.Store(-1) // -1 表示未分配
	c.roomID.Store("")
	c.lastRecvTime.Store(time.Now())
	return c
}

// Handle 处理连接
func (c *Connection) Handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	wg.Add(1)
	go c.startHeartbeat(ctx, wg)

	wg.Add(1)
	go c.sendLoop(ctx, wg)

	wg.Add(1)
	go c.receiveLoop(ctx, wg)

	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}

	c.Close()
}

// Close 关闭连接并从房间移除玩家
func (c *Connection) Close() {
	c.closeWithNotify(true)
}

// CloseWithoutNotify 关闭连接但不触发移除玩家逻辑
func (c *Connection) CloseWithoutNotify() {
	c.closeWithNotify(false)
}

func (c *Connection) closeWithNotify(notify bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeCh)

	if c.conn != nil {
		c.conn.Close()
	}
	close(c.sendChan)

	if notify {
		if playerID := c.ID(); playerID >= 0 {
			c.server.removePlayer(playerID, c.RoomID())
		}
	}

	c.log.Infow("连接已关闭", "playerID", c.ID())
}

// Send 发送数据（异步，绝不阻塞房间 tick）
func (c *Connection) Send(data []byte) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return fmt.Errorf("连接已关闭")
	}

	select {
	case c.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Connection) sendLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case data, ok := <-c.sendChan:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := protocol.WriteFrame(c.conn, data); err != nil {
				c.log.Warnw("发送失败", "playerID", c.ID(), "err", err)
				c.Close()
				return
			}
		}
	}
}

func (c *Connection) receiveLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		data, err := protocol.ReadFrame(c.conn)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// 读取超时本身不致命，心跳超时才断开
				continue
			}
			if !errors.Is(err, io.EOF) {
				c.log.Warnw("读取消息帧失败", "playerID", c.ID(), "err", err)
			}
			c.Close()
			return
		}
		if data == nil {
			continue
		}

		c.lastRecvTime.Store(time.Now())
		if err := c.handleMessage(data); err != nil {
			c.log.Warnw("处理消息失败", "playerID", c.ID(), "err", err)
		}
	}
}

// handleMessage 解码并按事件类型分发
func (c *Connection) handleMessage(data []byte) error {
	event, err := DecodePacket(data)
	if err != nil {
		return fmt.Errorf("反序列化失败: %w", err)
	}

	switch event.Kind {
	case EventJoin:
		if c.ID() >= 0 {
			return fmt.Errorf("玩家 %d 重复加入请求", c.ID())
		}
		if err := c.server.handleJoinRequest(c, *event.Join); err != nil {
			// 把拒绝原因回给客户端再断开
			c.sendJoinRejected(err.Error())
			return fmt.Errorf("处理加入请求失败: %w", err)
		}

	case EventInput:
		if c.ID() < 0 {
			return fmt.Errorf("未加入的连接上报输入")
		}
		event.Input.PlayerID = c.ID()
		event.Input.RaceID = c.RoomID()
		c.server.handleClientInput(event.Input)

	case EventPing:
		pong, err := protocol.NewPongPacket(event.Ping.ClientTime, time.Now().UnixMilli(), c.server.currentFrame(c.RoomID()))
		if err != nil {
			return err
		}
		data, err := protocol.MarshalPacket(pong)
		if err != nil {
			return err
		}
		return c.Send(data)

	case EventPong:
		if event.Pong.ClientTime > 0 {
			c.rtt.Store(time.Now().UnixMilli() - event.Pong.ClientTime)
		}

	case EventReconnect:
		return c.server.handleReconnect(c, event.Reconnect.SessionToken)

	case EventFinish:
		if c.ID() < 0 {
			return fmt.Errorf("未加入的连接申报完赛")
		}
		// 只采信连接自己的申报
		event.Finish.PlayerID = c.ID()
		c.server.handleFinishNotice(c.RoomID(), event.Finish)

	default:
		return fmt.Errorf("未知消息类型")
	}

	return nil
}

func (c *Connection) sendJoinRejected(reason string) {
	pkt, err := protocol.NewJoinResponsePacket(&protocol.JoinResponse{
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

// startHeartbeat 周期性心跳：太久没收到任何包就断开
func (c *Connection) startHeartbeat(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			lastRecv, _ := c.lastRecvTime.Load().(time.Time)
			if !lastRecv.IsZero() && time.Since(lastRecv) > heartbeatTimeout {
				c.log.Infow("心跳超时", "playerID", c.ID())
				c.Close()
				return
			}
			c.sendPing()
		}
	}
}

func (c *Connection) sendPing() {
	pkt, err := protocol.NewPingPacket(time.Now().UnixMilli())
	if err != nil {
		return
	}
	data, err := protocol.MarshalPacket(pkt)
	if err != nil {
		return
	}
	_ = c.Send(data)
}

// String 返回连接的字符串表示
func (c *Connection) String() string {
	if c.ID() >= 0 {
		return fmt.Sprintf("Connection{%d, %s}", c.ID(), c.conn.RemoteAddr())
	}
	return fmt.Sprintf("Connection{%s}", c.conn.RemoteAddr())
}

// ID 玩家 ID，未分配时为 -1
func (c *Connection) ID() int32 { return c.playerID.Load() }

// SetPlayerID 绑定玩家 ID
func (c *Connection) SetPlayerID(id int32) { c.playerID.Store(id) }

// RoomID 所在房间 ID
func (c *Connection) RoomID() string {
	id, _ := c.roomID.Load().(string)
	return id
}

// SetRoomID 绑定房间 ID
func (c *Connection) SetRoomID(id string) { c.roomID.Store(id) }
