package websocket

import (
	"fmt"

	"GreenCorridor/pkg/util"
)

// LoadConfigFromEnv overlays WEBSOCKET_* variables on DefaultConfig.
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()
	config.MaxConnections = util.GetIntEnvOr(EnvWebSocketMaxConnections, config.MaxConnections)
	config.HeartbeatInterval = util.GetDurationEnvOr(EnvWebSocketHeartbeatInterval, config.HeartbeatInterval)
	config.ConnectionTimeout = util.GetDurationEnvOr(EnvWebSocketConnectionTimeout, config.ConnectionTimeout)
	config.MessageBufferSize = int(util.GetIntEnvOr(EnvWebSocketMessageBufferSize, int64(config.MessageBufferSize)))
	config.MessageQueueSize = int(util.GetIntEnvOr(EnvWebSocketMessageQueueSize, int64(config.MessageQueueSize)))
	config.MaxMessageSize = int(util.GetIntEnvOr(EnvWebSocketMaxMessageSize, int64(config.MaxMessageSize)))
	config.EnableCompression = util.GetBoolEnvOr(EnvWebSocketEnableCompression, config.EnableCompression)
	config.DropOnFull = util.GetBoolEnvOr(EnvWebSocketDropOnFull, config.DropOnFull)
	config.SendTimeout = util.GetDurationEnvOr(EnvWebSocketSendTimeout, config.SendTimeout)
	return config
}

// ValidateConfig 验证WebSocket配置
func ValidateConfig(config *Config) error {
	switch {
	case config == nil:
		return fmt.Errorf("websocket config is nil")
	case config.MaxConnections <= 0:
		return fmt.Errorf("max connections must be positive")
	case config.HeartbeatInterval <= 0 || config.ConnectionTimeout <= 0:
		return fmt.Errorf("heartbeat interval and connection timeout must be positive")
	case config.HeartbeatInterval >= config.ConnectionTimeout:
		return fmt.Errorf("heartbeat interval must be shorter than connection timeout")
	case config.MessageBufferSize <= 0 || config.MessageQueueSize <= 0:
		return fmt.Errorf("buffer and queue sizes must be positive")
	case config.ReadBufferSize <= 0 || config.WriteBufferSize <= 0 || config.MaxMessageSize <= 0:
		return fmt.Errorf("read/write buffer and max message size must be positive")
	case !config.DropOnFull && config.SendTimeout <= 0:
		return fmt.Errorf("send timeout required when DropOnFull is off")
	}
	return nil
}
