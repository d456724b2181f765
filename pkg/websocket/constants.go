package websocket

const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeJoinGroup   = "join_group"
	MessageTypeLeaveGroup  = "leave_group"
	MessageTypeGroupJoined = "group_joined"
	MessageTypeGroupLeft   = "group_left"

	DefaultMessageBufferSize = 64
	DefaultMessageQueueSize  = 1024
	DefaultReadBufferSize    = 1024
	DefaultWriteBufferSize   = 1024
	DefaultMaxMessageSize    = 512

	EnvWebSocketMaxConnections    = "WEBSOCKET_MAX_CONNECTIONS"
	EnvWebSocketHeartbeatInterval = "WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvWebSocketConnectionTimeout = "WEBSOCKET_CONNECTION_TIMEOUT"
	EnvWebSocketMessageBufferSize = "WEBSOCKET_MESSAGE_BUFFER_SIZE"
	EnvWebSocketMessageQueueSize  = "WEBSOCKET_MESSAGE_QUEUE_SIZE"
	EnvWebSocketEnableCompression = "WEBSOCKET_ENABLE_COMPRESSION"
	EnvWebSocketDropOnFull        = "WEBSOCKET_DROP_ON_FULL"
	EnvWebSocketSendTimeout       = "WEBSOCKET_SEND_TIMEOUT"
	EnvWebSocketMaxMessageSize    = "WEBSOCKET_MAX_MESSAGE_SIZE"

	RouteWebSocket       = "/ws"
	RouteWebSocketStats  = "/ws/stats"
	RouteWebSocketHealth = "/ws/health"
)
