package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "risk"
)

// Ключи для Hash (состояние)
const (
	// RedisKeyAgentHealth — hash agent_id -> JSON снимка health-метрик
	RedisKeyAgentHealth = RedisNamespace + ":agents:health"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanControl — команды запуска/остановки, payload "agent_id:on|off"
	RedisChanControl      = RedisNamespace + ":agents:control"
	RedisChanSystemHealth = RedisNamespace + ":system:health"
)

// ControlPayload формирует сообщение для RedisChanControl.
func ControlPayload(agentID string, on bool) string {
	state := "off"
	if on {
		state = "on"
	}
	return fmt.Sprintf("%s:%s", agentID, state)
}
