package server

import (
	"fmt"
	"net"

	kcp "github.com/xtaci/kcp-go/v5"
)

// ServerListener 统一 TCP / KCP 监听
type ServerListener interface {
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

func newListener(proto, addr string) (ServerListener, error) {
	switch proto {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tcpListener{listener: listener}, nil
	case "kcp":
		listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return &kcpListener{listener: listener}, nil
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}

// newDualListeners 同一地址同时开 KCP（低延迟）和 TCP（可靠回退）
// 两个协议族端口互不冲突，客户端按网络状况任选一条
func newDualListeners(addr string) ([]ServerListener, error) {
	kcpL, err := newListener("kcp", addr)
	if err != nil {
		return nil, fmt.Errorf("KCP 监听失败: %w", err)
	}
	tcpL, err := newListener("tcp", addr)
	if err != nil {
		kcpL.Close()
		return nil, fmt.Errorf("TCP 监听失败: %w", err)
	}
	return []ServerListener{kcpL, tcpL}, nil
}

type tcpListener struct {
	listener net.Listener
}

func (l *tcpListener) Accept() (net.Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	// 开启 TCP_NODELAY，禁用 Nagle 算法以减少延迟
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

func (l *tcpListener) Close() error {
	return l.listener.Close()
}

func (l *tcpListener) Addr() net.Addr {
	return l.listener.Addr()
}

type kcpListener struct {
	listener *kcp.Listener
}

func (l *kcpListener) Accept() (net.Conn, error) {
	session, err := l.listener.AcceptKCP()
	if err != nil {
		return nil, err
	}
	// 快速模式：牺牲一点带宽换更低的重传延迟
	session.SetNoDelay(1, 10, 2, 1)
	return session, nil
}

func (l *kcpListener) Close() error {
	return l.listener.Close()
}

func (l *kcpListener) Addr() net.Addr {
	return l.listener.Addr()
}
