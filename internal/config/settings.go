package config

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"

	"gallery-spider/internal/storage"
)

// Keys for AppSettings in DB
const (
	KeyControlPort  = "control_port"
	KeyControlToken = "control_token"
	KeyRateLimit    = "rate_limit_bytes"
	KeyUserAgent    = "user_agent"
	KeyCookies      = "cookies"
)

type ConfigManager struct {
	storage *storage.Storage
}

func NewConfigManager(s *storage.Storage) *ConfigManager {
	return &ConfigManager{storage: s}
}

func (c *ConfigManager) GetControlPort() int {
	valStr, err := c.storage.GetString(KeyControlPort)
	if err != nil || valStr == "" {
		return 7227 // Default
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 7227
	}
	return val
}

func (c *ConfigManager) SetControlPort(port int) error {
	return c.storage.SetString(KeyControlPort, strconv.Itoa(port))
}

// GetRateLimit returns the global streaming limit in bytes per second,
// 0 for unlimited.
func (c *ConfigManager) GetRateLimit() int {
	valStr, err := c.storage.GetString(KeyRateLimit)
	if err != nil || valStr == "" {
		return 0
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0
	}
	return val
}

func (c *ConfigManager) SetRateLimit(bytesPerSec int) error {
	return c.storage.SetString(KeyRateLimit, strconv.Itoa(bytesPerSec))
}

func (c *ConfigManager) GetControlToken() string {
	val, err := c.storage.GetString(KeyControlToken)
	if err != nil || val == "" {
		// Generate if missing
		token := generateSecureToken()
		c.storage.SetString(KeyControlToken, token)
		return token
	}
	return val
}

func (c *ConfigManager) GetUserAgent() string {
	val, _ := c.storage.GetString(KeyUserAgent)
	return val
}

func (c *ConfigManager) GetCookies() string {
	val, _ := c.storage.GetString(KeyCookies)
	return val
}

func (c *ConfigManager) SetCookies(cookies string) error {
	return c.storage.SetString(KeyCookies, cookies)
}

func generateSecureToken() string {
	b := make([]byte, 16) // 16 bytes = 32 hex chars
	if _, err := rand.Read(b); err != nil {
		// Fallback (extremely unlikely)
		return "gallery-spider-fallback-token-change-me"
	}
	return hex.EncodeToString(b)
}
