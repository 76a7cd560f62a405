package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 帧格式：4 字节大端长度前缀 + 消息体
// TCP 和 KCP 流上共用同一套消息边界处理
const MaxFrameSize = 16 * 1024

var ErrFrameTooLarge = errors.New("消息帧过大")

// WriteFrame 写出一帧
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("写长度前缀失败: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("写消息体失败: %w", err)
	}
	return nil
}

// ReadFrame 读入一帧；空帧返回 (nil, nil)，调用方应跳过
func ReadFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
