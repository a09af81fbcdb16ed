package network

// 客户端 -> 服务器
const (
	MsgTypeHeartbeat  = 1
	MsgTypeCreateGame = 101
	MsgTypeJoinGame   = 102
	MsgTypeLeaveGame  = 103
	MsgTypeStartGame  = 104
	MsgTypeEndGame    = 105
	MsgTypeGetGame    = 106
	MsgTypeTag        = 201
	MsgTypeLocation   = 202
	MsgTypeCheckTag   = 203
)

// 服务器 -> 客户端
const (
	MsgTypeGameState      = 301
	MsgTypeEvent          = 302
	MsgTypeLocationResult = 303
	MsgTypeTagResult      = 304
	MsgTypeCheckTagResult = 305
	MsgTypeLeaveResult    = 306
	MsgTypeError          = 500
)
