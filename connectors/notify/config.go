package notify

import (
	"fmt"

	"github.com/hannesrauhe/bttimeout/utils"
)

// Config is the "notifications" section of the config file
type Config struct {
	Enabled  bool           `yaml:"enabled"`
	Desktop  DesktopConfig  `yaml:"desktop"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type DesktopConfig struct {
	Enabled bool   `yaml:"enabled"`
	AppName string `yaml:"app_name"`
	// a new warning replaces the previous one on screen instead of stacking up
	ReplacePrevious bool `yaml:"replace_previous"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Server   string `yaml:"server"` // broker url, tcp://, ssl:// or ws://, e.g. tcp://127.0.0.1:1883
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	Qos      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`

	// accept any server certificate for ssl:// and tls:// brokers
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

type TelegramConfig struct {
	Enabled bool    `yaml:"enabled"`
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

var DefaultConfig = Config{
	Enabled: true,
	Desktop: DesktopConfig{Enabled: true, AppName: "bluetooth-timeout", ReplacePrevious: true},
	MQTT:    MQTTConfig{Topic: "bluetooth-timeout/notification"},
}

// Validate only checks backends that are enabled
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Desktop.Enabled && c.Desktop.AppName == "" {
		return fmt.Errorf("%w: notifications.desktop.app_name must not be empty", utils.ErrInvalidConfig)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Server == "" {
			return fmt.Errorf("%w: notifications.mqtt.server is required", utils.ErrInvalidConfig)
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("%w: notifications.mqtt.topic is required", utils.ErrInvalidConfig)
		}
		if c.MQTT.Qos < 0 || c.MQTT.Qos > 2 {
			return fmt.Errorf("%w: notifications.mqtt.qos must be 0, 1 or 2", utils.ErrInvalidConfig)
		}
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || len(c.Telegram.ChatIDs) == 0) {
		return fmt.Errorf("%w: notifications.telegram needs a token and at least one chat id", utils.ErrInvalidConfig)
	}
	return nil
}
