package config

import (
	"fmt"
	"time"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validParity = map[string]bool{
	"N": true,
	"E": true,
	"O": true,
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: unknown zone %q: %w", c.Timezone, err)
	}

	if err := c.validateModbus(); err != nil {
		return fmt.Errorf("modbus config: %w", err)
	}
	if err := c.validatePolling(); err != nil {
		return fmt.Errorf("polling config: %w", err)
	}
	if err := c.validateValidation(); err != nil {
		return fmt.Errorf("validation config: %w", err)
	}
	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.validateHTTP(); err != nil {
		return fmt.Errorf("flask config: %w", err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.validateAlerts(); err != nil {
		return fmt.Errorf("alerts config: %w", err)
	}
	if c.HistoryMaxPoints <= 0 {
		return fmt.Errorf("history_max_points must be positive, got: %d", c.HistoryMaxPoints)
	}

	return nil
}

func (c *Config) validateModbus() error {
	if c.Modbus.SerialPort == "" {
		return fmt.Errorf("serial_port is required")
	}
	if c.Modbus.BaudRate <= 0 {
		return fmt.Errorf("baudrate must be positive, got: %d", c.Modbus.BaudRate)
	}
	if c.Modbus.ByteSize != 7 && c.Modbus.ByteSize != 8 {
		return fmt.Errorf("bytesize must be 7 or 8, got: %d", c.Modbus.ByteSize)
	}
	if !validParity[c.Modbus.Parity] {
		return fmt.Errorf("parity must be N, E, or O, got: %s", c.Modbus.Parity)
	}
	if c.Modbus.StopBits != 1 && c.Modbus.StopBits != 2 {
		return fmt.Errorf("stopbits must be 1 or 2, got: %d", c.Modbus.StopBits)
	}
	if c.Modbus.TimeoutSec <= 0 {
		return fmt.Errorf("timeout must be positive, got: %v", c.Modbus.TimeoutSec)
	}
	return nil
}

func (c *Config) validatePolling() error {
	if c.Polling.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive, got: %v", c.Polling.IntervalSeconds)
	}
	if c.Polling.SlaveDelaySeconds < 0 {
		return fmt.Errorf("slave_delay_seconds must be non-negative, got: %v", c.Polling.SlaveDelaySeconds)
	}
	if c.Polling.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive, got: %d", c.Polling.MaxRetries)
	}
	if len(c.Polling.Slaves) == 0 {
		return fmt.Errorf("at least one slave must be configured")
	}
	seen := make(map[int]bool, len(c.Polling.Slaves))
	for _, s := range c.Polling.Slaves {
		if s < 1 || s > 247 {
			return fmt.Errorf("slave address out of range [1,247]: %d", s)
		}
		if seen[s] {
			return fmt.Errorf("duplicate slave address: %d", s)
		}
		seen[s] = true
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.MaxValue <= c.Validation.MinValue {
		return fmt.Errorf("max_value (%d) must be greater than min_value (%d)",
			c.Validation.MaxValue, c.Validation.MinValue)
	}
	if c.Validation.MinValue < 0 {
		return fmt.Errorf("min_value must be non-negative, got: %d", c.Validation.MinValue)
	}
	if c.Validation.MaxValue > 0xFFFF {
		return fmt.Errorf("max_value must fit in a 16-bit register, got: %d", c.Validation.MaxValue)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if !c.Database.Enabled {
		return nil
	}
	if c.Database.Host == "" {
		return fmt.Errorf("host is required when database is enabled")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", c.Database.Port)
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database is required when database is enabled")
	}
	if c.Database.TableName == "" {
		return fmt.Errorf("table_name is required when database is enabled")
	}
	if c.Database.WriteIntervalSeconds <= 0 {
		return fmt.Errorf("write_interval_seconds must be positive, got: %d", c.Database.WriteIntervalSeconds)
	}
	if c.Database.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got: %d", c.Database.BatchSize)
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", c.HTTP.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %s, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes must be positive, got: %d", c.Logging.MaxBytes)
	}
	if c.Logging.BackupCount < 0 {
		return fmt.Errorf("backup_count must be non-negative, got: %d", c.Logging.BackupCount)
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if !c.Alerts.Enabled {
		return nil
	}
	if c.Alerts.OfflineThresholdMinutes <= 0 {
		return fmt.Errorf("offline_threshold_minutes must be positive, got: %d", c.Alerts.OfflineThresholdMinutes)
	}
	if c.Alerts.Telegram.BotTokenEnv == "" {
		return fmt.Errorf("telegram.bot_token_env is required when alerts are enabled")
	}
	if c.Alerts.Telegram.ChatIDEnv == "" {
		return fmt.Errorf("telegram.chat_id_env is required when alerts are enabled")
	}
	if c.Alerts.Telegram.AlertCooldownMinutes <= 0 {
		return fmt.Errorf("telegram.alert_cooldown_minutes must be positive, got: %d", c.Alerts.Telegram.AlertCooldownMinutes)
	}
	return nil
}
