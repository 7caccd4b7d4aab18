package main

import (
	"github.com/hannesrauhe/bttimeout/connectors/bluez"
	"github.com/hannesrauhe/bttimeout/connectors/notify"
	"github.com/hannesrauhe/bttimeout/timeout"
	"github.com/hannesrauhe/bttimeout/utils"
	"github.com/sirupsen/logrus"
)

type loggingConfig struct {
	Level            logrus.Level `yaml:"level"`
	DisableTimestamp bool         `yaml:"disable_timestamp"`
	DisableQuote     bool         `yaml:"disable_quote"`
}

var defaultLoggingConfig = loggingConfig{Level: logrus.InfoLevel}

type daemonConfig struct {
	Logging       loggingConfig
	Timeout       timeout.Config
	DBus          bluez.DBusConfig
	Notifications notify.Config
}

// readConfig reads all sections and fails on the first invalid one, before anything talks to
// the bus
func readConfig(cr *utils.ConfigReader) (*daemonConfig, error) {
	cfg := &daemonConfig{
		Logging:       defaultLoggingConfig,
		Timeout:       timeout.DefaultConfig,
		DBus:          bluez.DefaultDBusConfig,
		Notifications: notify.DefaultConfig,
	}
	sections := []struct {
		name   string
		target interface{}
	}{
		{"logging", &cfg.Logging},
		{"timeout", &cfg.Timeout},
		{"dbus", &cfg.DBus},
		{"notifications", &cfg.Notifications},
	}
	for _, s := range sections {
		if err := cr.ReadSectionWithDefaults(s.name, s.target); err != nil {
			return nil, err
		}
	}

	if err := cfg.Timeout.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.DBus.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Notifications.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogging(config loggingConfig, logger *logrus.Logger, verbose bool) {
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: config.DisableTimestamp,
		DisableQuote:     config.DisableQuote,
	})
	logger.SetLevel(config.Level)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
}
