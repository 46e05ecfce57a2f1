// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DefaultPath is the config file the binaries look for in the working directory.
const DefaultPath = "pollen_config.txt"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker            string `mapstructure:"MQTT_BROKER"`
	MQTTClientIDDashboard string `mapstructure:"MQTT_CLIENT_ID_DASHBOARD"`
	MQTTClientIDGPS       string `mapstructure:"MQTT_CLIENT_ID_GPS"`
	MQTTClientIDConsole   string `mapstructure:"MQTT_CLIENT_ID_CONSOLE"`
	MQTTClientIDDisplay   string `mapstructure:"MQTT_CLIENT_ID_DISPLAY"`

	// Topics
	TopicPollen string `mapstructure:"TOPIC_POLLEN"`

	// History / device API
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	APITimeout int    `mapstructure:"API_TIMEOUT"` // milliseconds

	// Local DHT poll
	DHTPollURL      string `mapstructure:"DHT_POLL_URL"`
	DHTPollInterval int    `mapstructure:"DHT_POLL_INTERVAL"` // milliseconds

	// Charts
	SeriesCapacity int `mapstructure:"SERIES_CAPACITY"`

	// Local archive of received messages; empty disables it
	ArchivePath string `mapstructure:"ARCHIVE_PATH"`

	// Web Server
	WebServerPort int    `mapstructure:"WEB_SERVER_PORT"`
	WebRoot       string `mapstructure:"WEB_ROOT"`

	// GPS bridge
	GPSSerialPort string `mapstructure:"GPS_SERIAL_PORT"`
	GPSBaudRate   int    `mapstructure:"GPS_BAUD_RATE"`

	// Sensor node
	SensorNodePort   int    `mapstructure:"SENSOR_NODE_PORT"`
	SensorBus        string `mapstructure:"SENSOR_BUS"` // periph I²C bus name, "" = first bus
	SensorI2CAddrRaw string `mapstructure:"SENSOR_I2C_ADDR"`
	SensorI2CAddr    uint16 `mapstructure:"-"`

	// Status display (SSD1306 on the sensor bus)
	DisplayI2CAddrRaw     string `mapstructure:"DISPLAY_I2C_ADDR"`
	DisplayI2CAddr        uint16 `mapstructure:"-"`
	DisplayUpdateInterval int    `mapstructure:"DISPLAY_UPDATE_INTERVAL"` // milliseconds

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]interface{}{
	"MQTT_BROKER":              "wss://mqtt.eclipseprojects.io/mqtt",
	"MQTT_CLIENT_ID_DASHBOARD": "pollen-dashboard",
	"MQTT_CLIENT_ID_GPS":       "pollen-gps-bridge",
	"MQTT_CLIENT_ID_CONSOLE":   "pollen-console",
	"MQTT_CLIENT_ID_DISPLAY":   "pollen-display",
	"TOPIC_POLLEN":             "/pollen",
	"API_BASE_URL":             "https://pollen.botondhorvath.com/api",
	"API_TIMEOUT":              10000,
	"DHT_POLL_URL":             "http://pollen3.local:8080/api/get_dht",
	"DHT_POLL_INTERVAL":        15000,
	"SERIES_CAPACITY":          100,
	"ARCHIVE_PATH":             "",
	"WEB_SERVER_PORT":          8080,
	"WEB_ROOT":                 "web",
	"GPS_SERIAL_PORT":          "/dev/serial0",
	"GPS_BAUD_RATE":            9600,
	"SENSOR_NODE_PORT":         8080,
	"SENSOR_BUS":               "",
	"SENSOR_I2C_ADDR":          "0x76",
	"DISPLAY_I2C_ADDR":         "0x3C",
	"DISPLAY_UPDATE_INTERVAL":  2000,
	"LOG_LEVEL":                "info",
}

// Package-level singleton, set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the KEY=VALUE configuration file at configPath. Environment
// variables with the same key override file values. A missing file is not
// an error: defaults and environment are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
			}
		} else if os.IsNotExist(err) {
			log.Debugf("config: %s not found, using defaults and environment", configPath)
		} else {
			return nil, errors.Wrap(err, "failed to open config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks required fields and ranges.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return errors.New("MQTT_BROKER is required")
	}
	if c.TopicPollen == "" {
		return errors.New("TOPIC_POLLEN is required")
	}
	if c.APITimeout <= 0 {
		return errors.Errorf("API_TIMEOUT must be positive, got %d", c.APITimeout)
	}
	if c.DHTPollInterval <= 0 {
		return errors.Errorf("DHT_POLL_INTERVAL must be positive, got %d", c.DHTPollInterval)
	}
	if c.SeriesCapacity <= 0 {
		return errors.Errorf("SERIES_CAPACITY must be positive, got %d", c.SeriesCapacity)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return errors.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if c.SensorNodePort <= 0 || c.SensorNodePort > 65535 {
		return errors.Errorf("SENSOR_NODE_PORT out of range: %d", c.SensorNodePort)
	}
	if c.GPSBaudRate <= 0 {
		return errors.Errorf("GPS_BAUD_RATE must be positive, got %d", c.GPSBaudRate)
	}
	if c.DisplayUpdateInterval <= 0 {
		return errors.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	var err error
	if c.SensorI2CAddr, err = parseI2CAddr("SENSOR_I2C_ADDR", c.SensorI2CAddrRaw); err != nil {
		return err
	}
	if c.DisplayI2CAddr, err = parseI2CAddr("DISPLAY_I2C_ADDR", c.DisplayI2CAddrRaw); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid LOG_LEVEL")
	}
	return nil
}

// parseI2CAddr accepts a 7-bit address in any base ParseUint understands.
func parseI2CAddr(key, raw string) (uint16, error) {
	addr, err := strconv.ParseUint(raw, 0, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, raw)
	}
	if addr > 0x7f {
		return 0, errors.Errorf("%s out of range: %s", key, raw)
	}
	return uint16(addr), nil
}

// DisplayInterval is DISPLAY_UPDATE_INTERVAL as a duration.
func (c *Config) DisplayInterval() time.Duration {
	return time.Duration(c.DisplayUpdateInterval) * time.Millisecond
}

// PollInterval is DHT_POLL_INTERVAL as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.DHTPollInterval) * time.Millisecond
}

// HTTPTimeout is API_TIMEOUT as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Millisecond
}

// Level is the parsed LOG_LEVEL.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// InitGlobal loads the global configuration once; later calls return the
// first result.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration. InitGlobal must be called first,
// or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
