// Package config loads and validates config.json and exposes a runtime
// view whose bridge enable flags can be refreshed without a restart.
package config

import (
	"fmt"
	"strings"
)

// Config is the root of config.json.
type Config struct {
	PrintQR        *bool          `json:"printQR"`
	QQConfig       QQConfig       `json:"qqConfig"`
	DiscordConfig  DiscordConfig  `json:"discordConfig"`
	TelegramConfig TelegramConfig `json:"telegramConfig"`
	Bridges        []Bridge       `json:"bridges"`

	// HistoryHorizonHours prunes correlation records older than this many
	// hours. 0 keeps everything; values below 24 are rejected.
	HistoryHorizonHours int `json:"historyHorizonHours"`
}

// QQConfig holds QQ bot credentials and the Mirai-style backend endpoint.
type QQConfig struct {
	BotID     int64  `json:"botId"`
	Password  string `json:"password"`
	Version   string `json:"version"`
	Auth      string `json:"auth"`
	Host      string `json:"host"`
	VerifyKey string `json:"verifyKey"`
}

type DiscordConfig struct {
	BotID    uint64 `json:"botId"`
	BotToken string `json:"botToken"`
}

type TelegramConfig struct {
	APIID    int32  `json:"apiId"`
	APIHash  string `json:"apiHash"`
	BotToken string `json:"botToken"`
}

// Bridge maps one group chat across platforms.
type Bridge struct {
	Discord DiscordBridge `json:"discord"`
	QQGroup int64         `json:"qqGroup"`
	TGGroup int64         `json:"tgGroup"`
	Enable  bool          `json:"enable"`
}

// DiscordBridge holds the per-bridge webhook credentials and channel.
type DiscordBridge struct {
	ID        uint64 `json:"id"`
	Token     string `json:"token"`
	ChannelID uint64 `json:"channelId"`
}

// SameChannel reports whether two bridge entries map the same group set.
// Used to re-resolve a captured mapping against the current config.
func (b Bridge) SameChannel(other Bridge) bool {
	return b.Discord.ChannelID == other.Discord.ChannelID &&
		b.QQGroup == other.QQGroup &&
		b.TGGroup == other.TGGroup
}

var qqVersions = map[string]bool{
	"ipad": true, "macos": true, "androidphone": true, "androidwatch": true, "qidian": true,
}

// Validate checks the loaded config for fatal faults.
func (c *Config) Validate() error {
	switch strings.ToLower(c.QQConfig.Auth) {
	case "pwd":
		if c.QQConfig.BotID == 0 || c.QQConfig.Password == "" {
			return fmt.Errorf("qqConfig: auth \"pwd\" requires botId and password")
		}
		if len(c.QQConfig.Password) != 16 {
			return fmt.Errorf("qqConfig: password must be a 16-char md5 digest")
		}
	case "qr":
	default:
		return fmt.Errorf("qqConfig: unsupported auth %q (want \"pwd\" or \"qr\")", c.QQConfig.Auth)
	}
	if !qqVersions[strings.ToLower(c.QQConfig.Version)] {
		return fmt.Errorf("qqConfig: unsupported version %q", c.QQConfig.Version)
	}
	if c.DiscordConfig.BotID == 0 {
		return fmt.Errorf("discordConfig: botId is required")
	}
	if c.DiscordConfig.BotToken == "" {
		return fmt.Errorf("discordConfig: botToken is required")
	}
	if c.TelegramConfig.BotToken == "" {
		return fmt.Errorf("telegramConfig: botToken is required")
	}
	if c.HistoryHorizonHours != 0 && c.HistoryHorizonHours < 24 {
		return fmt.Errorf("historyHorizonHours: must be 0 or at least 24")
	}
	if len(c.Bridges) == 0 {
		return fmt.Errorf("bridges: at least one bridge mapping is required")
	}
	return nil
}
