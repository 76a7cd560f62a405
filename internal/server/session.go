package server

// Session 房间侧看到的一条玩家连接
// 抽成接口便于在测试里用假连接驱动房间
type Session interface {
	ID() int32
	RoomID() string
	Send(data []byte) error
	Close()
	CloseWithoutNotify()
	SetPlayerID(id int32)
	SetRoomID(id string)
}
