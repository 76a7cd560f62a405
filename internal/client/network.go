package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"

	"github.com/erlancarreira/nitrogame-sub001/pkg/core"
	"github.com/erlancarreira/nitrogame-sub001/pkg/protocol"
)

const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 10 * time.Second
	pingInterval     = 2 * time.Second
)

// ClientEventKind 会话事件类型
type ClientEventKind int

const (
	EventUnknown ClientEventKind = iota
	EventPlayerJoin
	EventPlayerLeave
	EventRaceStart
	EventRaceOver
)

// ClientEvent 会话事件的封闭联合：按 Kind 分发
type ClientEvent struct {
	Kind        ClientEventKind
	PlayerJoin  *protocol.PlayerJoin
	PlayerLeave *protocol.PlayerLeave
	RaceStart   *protocol.RaceStart
	RaceOver    *protocol.RaceOver
}

// NetworkClient 网络客户端
// 低延迟走 KCP，可靠回退走 TCP，两条通道承载同一种消息帧；
// 接收回调只把消息塞进按类型划分的队列，模拟循环下一帧再消费
type NetworkClient struct {
	conn       net.Conn
	serverAddr string
	proto      string
	log        *zap.SugaredLogger

	// 本地玩家信息（握手后填充）
	playerID     int32
	sessionToken string
	joinInfo     *protocol.JoinResponse

	// 网络
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// 消息队列（单生产单消费：接收循环写，模拟循环读）
	joinChan      chan *protocol.JoinResponse
	reconnectChan chan *protocol.ReconnectResponse
	confirmChan   chan *protocol.SnapshotConfirm
	positionChan  chan *protocol.PositionReport
	finishChan    chan *protocol.FinishNotice
	eventChan     chan ClientEvent

	// 发送队列
	inputSeq int32
	sendChan chan []byte

	// RTT（毫秒）
	rtt atomic.Int64

	errChan chan error
}

// NewNetworkClient 创建网络客户端
func NewNetworkClient(serverAddr, proto string, log *zap.SugaredLogger) *NetworkClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &NetworkClient{
		serverAddr:   serverAddr,
		proto:        proto,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		joinChan:      make(chan *protocol.JoinResponse, 1),
		reconnectChan: make(chan *protocol.ReconnectResponse, 1),
		confirmChan:   make(chan *protocol.SnapshotConfirm, 64),
		positionChan:  make(chan *protocol.PositionReport, 256),
		finishChan:    make(chan *protocol.FinishNotice, 16),
		eventChan:     make(chan ClientEvent, 32),
		sendChan:      make(chan []byte, 256),
		errChan:       make(chan error, 1),
	}
}

// Connect 连接服务器并完成加入握手
func (nc *NetworkClient) Connect(playerName, kartColor, raceID string) error {
	nc.log.Infow("连接到服务器", "addr", nc.serverAddr, "proto", nc.proto)

	conn, err := nc.dial()
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	nc.conn = conn
	nc.connected = true

	nc.wg.Add(1)
	go nc.receiveLoop()
	nc.wg.Add(1)
	go nc.sendLoop()
	nc.wg.Add(1)
	go nc.pingLoop()

	pkt, err := protocol.NewJoinRequestPacket(playerName, kartColor, raceID)
	if err != nil {
		nc.Close()
		return err
	}
	if err := nc.sendPacket(pkt); err != nil {
		nc.Close()
		return fmt.Errorf("发送加入请求失败: %w", err)
	}

	select {
	case resp := <-nc.joinChan:
		if !resp.Success {
			nc.Close()
			return fmt.Errorf("加入被拒绝: %s", resp.ErrorMessage)
		}
		nc.playerID = resp.PlayerID
		nc.sessionToken = resp.SessionToken
		nc.joinInfo = resp
		nc.log.Infow("加入成功", "playerID", nc.playerID, "raceID", resp.RaceID)
		return nil

	case err := <-nc.errChan:
		nc.Close()
		return err

	case <-time.After(handshakeTimeout):
		nc.Close()
		return errors.New("等待加入响应超时")
	}
}

// Reconnect 用会话令牌重新建立连接并顶替旧连接
// 断线后在新的 NetworkClient 上调用；成功后预测引擎应以
// 返回的权威状态为基态重置（SetState）
func (nc *NetworkClient) Reconnect(token string) (*protocol.ReconnectResponse, error) {
	conn, err := nc.dial()
	if err != nil {
		return nil, fmt.Errorf("连接服务器失败: %w", err)
	}
	nc.conn = conn
	nc.connected = true

	nc.wg.Add(1)
	go nc.receiveLoop()
	nc.wg.Add(1)
	go nc.sendLoop()
	nc.wg.Add(1)
	go nc.pingLoop()

	pkt, err := protocol.NewReconnectRequestPacket(token)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if err := nc.sendPacket(pkt); err != nil {
		nc.Close()
		return nil, fmt.Errorf("发送重连请求失败: %w", err)
	}

	select {
	case resp := <-nc.reconnectChan:
		if !resp.Success {
			nc.Close()
			return nil, fmt.Errorf("重连被拒绝: %s", resp.ErrorMessage)
		}
		nc.playerID = resp.PlayerID
		nc.sessionToken = token
		nc.log.Infow("重连成功", "playerID", nc.playerID, "lastFrame", resp.LastFrame)
		return resp, nil

	case err := <-nc.errChan:
		nc.Close()
		return nil, err

	case <-time.After(handshakeTimeout):
		nc.Close()
		return nil, errors.New("等待重连响应超时")
	}
}

func (nc *NetworkClient) dial() (net.Conn, error) {
	switch nc.proto {
	case "", "kcp":
		conn, err := kcp.DialWithOptions(nc.serverAddr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		conn.SetStreamMode(true)
		conn.SetNoDelay(1, 10, 2, 1)
		return conn, nil
	case "tcp":
		// 可靠回退通道
		return net.DialTimeout("tcp", nc.serverAddr, dialTimeout)
	default:
		return nil, fmt.Errorf("不支持的协议: %s", nc.proto)
	}
}

// Close 关闭连接
func (nc *NetworkClient) Close() {
	if !nc.connected {
		return
	}
	nc.connected = false
	nc.cancel()

	if nc.conn != nil {
		nc.conn.Close()
	}
	nc.wg.Wait()
	nc.log.Infow("网络客户端已关闭")
}

// PlayerID 本地玩家 ID
func (nc *NetworkClient) PlayerID() int32 { return nc.playerID }

// SessionToken 会话令牌（重连用）
func (nc *NetworkClient) SessionToken() string { return nc.sessionToken }

// JoinInfo 加入响应（赛道、出生点、圈数配置）
func (nc *NetworkClient) JoinInfo() *protocol.JoinResponse { return nc.joinInfo }

// RTT 最近一次测得的往返时延（毫秒）
func (nc *NetworkClient) RTT() int64 { return nc.rtt.Load() }

// IsConnected 是否已连接
func (nc *NetworkClient) IsConnected() bool { return nc.connected }

// ========== 消息接收 ==========

func (nc *NetworkClient) receiveLoop() {
	defer nc.wg.Done()

	for {
		select {
		case <-nc.ctx.Done():
			return
		default:
		}

		data, err := protocol.ReadFrame(nc.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case nc.errChan <- fmt.Errorf("读取消息帧失败: %w", err):
				default:
				}
			}
			return
		}
		if data == nil {
			continue
		}

		if err := nc.handleMessage(data); err != nil {
			nc.log.Warnw("处理消息失败", "err", err)
		}
	}
}

// handleMessage 按类型分发收到的消息
// 队列满时丢弃最新（状态类消息丢了没关系，下一条马上来）
func (nc *NetworkClient) handleMessage(data []byte) error {
	pkt, err := protocol.UnmarshalPacket(data)
	if err != nil {
		return fmt.Errorf("反序列化失败: %w", err)
	}

	switch pkt.Type {
	case protocol.TypeJoinResponse:
		resp, err := protocol.ParseJoinResponse(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.joinChan <- resp:
		default:
		}

	case protocol.TypeReconnectResponse:
		resp, err := protocol.ParseReconnectResponse(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.reconnectChan <- resp:
		default:
		}

	case protocol.TypeSnapshotConfirm:
		confirm, err := protocol.ParseSnapshotConfirm(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.confirmChan <- confirm:
		default:
		}

	case protocol.TypePositionReport:
		report, err := protocol.ParsePositionReport(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.positionChan <- report:
		default:
		}

	case protocol.TypeFinishNotice:
		notice, err := protocol.ParseFinishNotice(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.finishChan <- notice:
		default:
		}

	case protocol.TypePing:
		ping, err := protocol.ParsePing(pkt)
		if err != nil {
			return err
		}
		// 服务器心跳：原样回带时间戳
		pong, err := protocol.NewPongPacket(ping.ClientTime, time.Now().UnixMilli(), 0)
		if err == nil {
			_ = nc.sendPacket(pong)
		}

	case protocol.TypePong:
		pong, err := protocol.ParsePong(pkt)
		if err != nil {
			return err
		}
		if pong.ClientTime > 0 {
			nc.rtt.Store(time.Now().UnixMilli() - pong.ClientTime)
		}

	case protocol.TypePlayerJoin:
		join, err := protocol.ParsePlayerJoin(pkt)
		if err != nil {
			return err
		}
		nc.pushEvent(ClientEvent{Kind: EventPlayerJoin, PlayerJoin: join})

	case protocol.TypePlayerLeave:
		leave, err := protocol.ParsePlayerLeave(pkt)
		if err != nil {
			return err
		}
		nc.pushEvent(ClientEvent{Kind: EventPlayerLeave, PlayerLeave: leave})

	case protocol.TypeRaceStart:
		start, err := protocol.ParseRaceStart(pkt)
		if err != nil {
			return err
		}
		nc.pushEvent(ClientEvent{Kind: EventRaceStart, RaceStart: start})

	case protocol.TypeRaceOver:
		over, err := protocol.ParseRaceOver(pkt)
		if err != nil {
			return err
		}
		nc.pushEvent(ClientEvent{Kind: EventRaceOver, RaceOver: over})

	default:
		return fmt.Errorf("未知消息类型: %s", pkt.Type)
	}

	return nil
}

func (nc *NetworkClient) pushEvent(ev ClientEvent) {
	select {
	case nc.eventChan <- ev:
	default:
	}
}

// ========== 消息发送 ==========

func (nc *NetworkClient) sendLoop() {
	defer nc.wg.Done()

	for {
		select {
		case <-nc.ctx.Done():
			return
		case data, ok := <-nc.sendChan:
			if !ok {
				return
			}
			if err := protocol.WriteFrame(nc.conn, data); err != nil {
				nc.log.Warnw("发送消息帧失败", "err", err)
				return
			}
		}
	}
}

// pingLoop 周期性测量 RTT
func (nc *NetworkClient) pingLoop() {
	defer nc.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-nc.ctx.Done():
			return
		case <-ticker.C:
			pkt, err := protocol.NewPingPacket(time.Now().UnixMilli())
			if err != nil {
				continue
			}
			_ = nc.sendPacket(pkt)
		}
	}
}

var errSendQueueFull = errors.New("发送队列满")

// sendPacket 序列化并入发送队列（非阻塞，绝不卡住模拟帧）
func (nc *NetworkClient) sendPacket(pkt *protocol.Packet) error {
	data, err := protocol.MarshalPacket(pkt)
	if err != nil {
		return err
	}
	select {
	case nc.sendChan <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

// ========== 输入上报 ==========

// SendInputWindow 上报一段输入窗口（实现预测引擎的出网口）
func (nc *NetworkClient) SendInputWindow(inputs []core.Input) {
	if !nc.connected {
		return
	}

	nc.inputSeq++
	msgs := make([]protocol.InputFrameMsg, 0, len(inputs))
	for _, in := range inputs {
		msgs = append(msgs, protocol.CoreInputToMsg(in))
	}

	pkt, err := protocol.NewInputReportPacket(nc.inputSeq, msgs)
	if err != nil {
		nc.log.Warnw("序列化输入失败", "err", err)
		return
	}
	if err := nc.sendPacket(pkt); err != nil {
		nc.log.Debugw("上报输入失败", "err", err)
	}
}

// SendFinishNotice 上报本地完赛（权威模型：受害者申报制）
func (nc *NetworkClient) SendFinishNotice(finishTime int64) {
	pkt, err := protocol.NewFinishNoticePacket(nc.playerID, finishTime)
	if err != nil {
		return
	}
	_ = nc.sendPacket(pkt)
}

// ========== 非阻塞读取 ==========

// ReceiveConfirm 取一条快照确认（非阻塞）
func (nc *NetworkClient) ReceiveConfirm() *protocol.SnapshotConfirm {
	select {
	case confirm := <-nc.confirmChan:
		return confirm
	default:
		return nil
	}
}

// ReceivePositionReport 取一条位置报告（非阻塞）
func (nc *NetworkClient) ReceivePositionReport() *protocol.PositionReport {
	select {
	case report := <-nc.positionChan:
		return report
	default:
		return nil
	}
}

// ReceiveFinishNotice 取一条完赛通知（非阻塞）
func (nc *NetworkClient) ReceiveFinishNotice() *protocol.FinishNotice {
	select {
	case notice := <-nc.finishChan:
		return notice
	default:
		return nil
	}
}

// ReceiveEvent 取一条会话事件（非阻塞）
func (nc *NetworkClient) ReceiveEvent() (ClientEvent, bool) {
	select {
	case ev := <-nc.eventChan:
		return ev, true
	default:
		return ClientEvent{}, false
	}
}
