// Package config loads and validates the JSON configuration file that
// describes the serial bus, polling cadence, validation range, ERP
// database, HTTP surface, logging, and alert transport for the silo
// monitor.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Timezone         string         `json:"timezone"`
	Modbus           ModbusConfig   `json:"modbus"`
	Polling          PollingConfig  `json:"polling"`
	Validation       ValidateConfig `json:"validation"`
	Database         DatabaseConfig `json:"database"`
	HTTP             HTTPConfig     `json:"flask"`
	Logging          LoggingConfig  `json:"logging"`
	Alerts           AlertsConfig   `json:"alerts"`
	HistoryMaxPoints int            `json:"history_max_points"`
}

// ModbusConfig describes the serial handle used to reach the RTU bus.
type ModbusConfig struct {
	SerialPort string  `json:"serial_port"`
	BaudRate   int     `json:"baudrate"`
	ByteSize   int     `json:"bytesize"`
	Parity     string  `json:"parity"`
	StopBits   int     `json:"stopbits"`
	TimeoutSec float64 `json:"timeout"`
}

// Timeout returns the per-transaction timeout as a Duration.
func (m *ModbusConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSec * float64(time.Second))
}

// PollingConfig describes the poll cycle.
type PollingConfig struct {
	IntervalSeconds    float64 `json:"interval_seconds"`
	SlaveDelaySeconds  float64 `json:"slave_delay_seconds"`
	MaxRetries         int     `json:"max_retries"`
	Slaves             []int   `json:"slaves"`
}

// Interval returns the configured cycle interval as a Duration.
func (p *PollingConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds * float64(time.Second))
}

// SlaveDelay returns the inter-device pacing delay as a Duration.
func (p *PollingConfig) SlaveDelay() time.Duration {
	return time.Duration(p.SlaveDelaySeconds * float64(time.Second))
}

// ValidateConfig describes the accepted register range.
type ValidateConfig struct {
	MinValue int `json:"min_value"`
	MaxValue int `json:"max_value"`
}

// DatabaseConfig describes the ERP SQL Server connection and batching.
type DatabaseConfig struct {
	Enabled              bool   `json:"enabled"`
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	Database             string `json:"database"`
	Instance             string `json:"instance"`
	UsernameEnv          string `json:"username_env"`
	PasswordEnv          string `json:"password_env"`
	TableName            string `json:"table_name"`
	Driver               string `json:"driver"`
	WriteIntervalSeconds int    `json:"write_interval_seconds"`
	BatchSize            int    `json:"batch_size"`
}

// WriteInterval returns the batch flush interval as a Duration.
func (d *DatabaseConfig) WriteInterval() time.Duration {
	return time.Duration(d.WriteIntervalSeconds) * time.Second
}

// HTTPConfig describes the embedded monitoring server.
type HTTPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoggingConfig describes the log sink and rotation policy.
type LoggingConfig struct {
	LogDir     string `json:"log_dir"`
	LogFile    string `json:"log_file"`
	Level      string `json:"level"`
	MaxBytes   int    `json:"max_bytes"`
	BackupCount int   `json:"backup_count"`
}

// TelegramConfig describes the chat transport credentials and cooldown.
type TelegramConfig struct {
	BotTokenEnv          string `json:"bot_token_env"`
	ChatIDEnv            string `json:"chat_id_env"`
	AlertCooldownMinutes int    `json:"alert_cooldown_minutes"`
}

// Cooldown returns the repeat-alert suppression window as a Duration.
func (t *TelegramConfig) Cooldown() time.Duration {
	return time.Duration(t.AlertCooldownMinutes) * time.Minute
}

// AlertsConfig describes the alert engine's debounce policy and transport.
type AlertsConfig struct {
	Enabled                 bool           `json:"enabled"`
	OfflineThresholdMinutes int            `json:"offline_threshold_minutes"`
	Telegram                TelegramConfig `json:"telegram"`
	NATSURL                 string         `json:"nats_url"`
}

// OfflineThreshold returns the debounce window as a Duration.
func (a *AlertsConfig) OfflineThreshold() time.Duration {
	return time.Duration(a.OfflineThresholdMinutes) * time.Minute
}

// Load reads, defaults, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults fills in default values for optional fields.
func (c *Config) setDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Rome"
	}

	if c.Modbus.ByteSize == 0 {
		c.Modbus.ByteSize = 8
	}
	if c.Modbus.Parity == "" {
		c.Modbus.Parity = "N"
	}
	if c.Modbus.StopBits == 0 {
		c.Modbus.StopBits = 1
	}
	if c.Modbus.TimeoutSec == 0 {
		c.Modbus.TimeoutSec = 1.0
	}

	if c.Polling.IntervalSeconds == 0 {
		c.Polling.IntervalSeconds = 30
	}
	if c.Polling.SlaveDelaySeconds == 0 {
		c.Polling.SlaveDelaySeconds = 0.1
	}
	if c.Polling.MaxRetries == 0 {
		c.Polling.MaxRetries = 3
	}
	if len(c.Polling.Slaves) == 0 {
		c.Polling.Slaves = make([]int, 15)
		for i := range c.Polling.Slaves {
			c.Polling.Slaves[i] = i + 1
		}
	}

	if c.Validation.MaxValue == 0 {
		c.Validation.MaxValue = 28000
	}

	if c.Database.Port == 0 {
		c.Database.Port = 1433
	}
	if c.Database.TableName == "" {
		c.Database.TableName = "silo_monitoring"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlserver"
	}
	if c.Database.WriteIntervalSeconds == 0 {
		c.Database.WriteIntervalSeconds = 60
	}
	if c.Database.BatchSize == 0 {
		c.Database.BatchSize = 50
	}

	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxBytes == 0 {
		c.Logging.MaxBytes = 10 * 1024 * 1024
	}
	if c.Logging.BackupCount == 0 {
		c.Logging.BackupCount = 5
	}

	if c.Alerts.OfflineThresholdMinutes == 0 {
		c.Alerts.OfflineThresholdMinutes = 5
	}
	if c.Alerts.Telegram.AlertCooldownMinutes == 0 {
		c.Alerts.Telegram.AlertCooldownMinutes = 15
	}

	if c.HistoryMaxPoints == 0 {
		c.HistoryMaxPoints = 100
	}
}

// Save writes the configuration to path atomically (temp file + rename).
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	return nil
}

// ExternalCode returns the ERP-visible identifier for a slave address
// using the default S-prefixed zero-padded mapping.
func ExternalCode(slave int) string {
	return fmt.Sprintf("S%02d", slave)
}

// Example returns a Config populated with defaults, suitable for writing
// out as a starter file when none is found at startup.
func Example() *Config {
	cfg := &Config{
		Modbus: ModbusConfig{
			SerialPort: "/dev/ttyUSB0",
			BaudRate:   9600,
		},
	}
	cfg.setDefaults()
	return cfg
}
