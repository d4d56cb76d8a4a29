package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Shipwatch ShipwatchConfig `yaml:"shipwatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	DispatchedTopic     string `yaml:"dispatched_topic"`
	OutForDeliveryTopic string `yaml:"out_for_delivery_topic"`
	DeliveredTopic      string `yaml:"delivered_topic"`
	CompletedTopic      string `yaml:"completed_topic"`
	StatusObservedTopic string `yaml:"status_observed_topic"`
}

type ShipwatchConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// "live" (default) or "fake" for demo runs without USPS credentials.
	USPSMode string `yaml:"usps_mode"`

	USPSUserID         string `yaml:"usps_user_id"`
	USPSEndpoint       string `yaml:"usps_endpoint"`
	USPSTimeoutSeconds int    `yaml:"usps_timeout_seconds"`

	Carrier         string `yaml:"carrier"`
	DomesticCountry string `yaml:"domestic_country"`

	LoggingEnabled bool `yaml:"logging_enabled"`

	// Pointer so "not set" can default to enabled.
	MarkStaleOverseasComplete *bool `yaml:"mark_stale_overseas_complete"`

	CandidateStatuses []string `yaml:"candidate_statuses"`
	ReturnedStatus    string   `yaml:"returned_status"`

	CycleCron             string `yaml:"cycle_cron"`
	FollowupDelaySeconds  int    `yaml:"followup_delay_seconds"`
	CursorKey             string `yaml:"cursor_key"`
	CursorClearTTLSeconds int    `yaml:"cursor_clear_ttl_seconds"`
	RateLimitPerMinute    int    `yaml:"rate_limit_per_minute"`

	// Classifier literal lists. Empty means the built-in defaults.
	NotPickedUpStatuses []string `yaml:"not_picked_up_statuses"`
	PickedUpStatuses    []string `yaml:"picked_up_statuses"`
}

// MarkStaleOverseasCompleteEnabled resolves the tri-state flag (unset = on).
func (c ShipwatchConfig) MarkStaleOverseasCompleteEnabled() bool {
	if c.MarkStaleOverseasComplete == nil {
		return true
	}
	return *c.MarkStaleOverseasComplete
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
