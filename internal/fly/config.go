// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package fly

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Config holds the Kafka producer configuration used for job dispatch.
type Config struct {
	Brokers []string `mapstructure:"brokers"`

	// SASL authentication
	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"` // "SCRAM-SHA-256", "SCRAM-SHA-512" or "PLAIN"
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	ProducerBatchSize    int           `mapstructure:"producer_batch_size"`
	ProducerBatchTimeout time.Duration `mapstructure:"producer_batch_timeout"`
	ProducerCompression  string        `mapstructure:"producer_compression"`

	// JobsTopic receives namespace migration and install jobs.
	JobsTopic string `mapstructure:"jobs_topic"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Brokers:              []string{"localhost:9092"},
		SASLMechanism:        "SCRAM-SHA-256",
		ProducerBatchSize:    1,
		ProducerBatchTimeout: 50 * time.Millisecond,
		ProducerCompression:  "snappy",
		JobsTopic:            "wikifarm.jobs",
	}
}

// LoadFromEnv loads configuration from WIKIFARM_KAFKA_* environment variables.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if brokers := os.Getenv("WIKIFARM_KAFKA_BROKERS"); brokers != "" {
		cfg.Brokers = strings.Split(brokers, ",")
	}

	if enabled := os.Getenv("WIKIFARM_KAFKA_SASL_ENABLED"); enabled != "" {
		cfg.SASLEnabled = strings.ToLower(enabled) == "true"
	}
	if mechanism := os.Getenv("WIKIFARM_KAFKA_SASL_MECHANISM"); mechanism != "" {
		cfg.SASLMechanism = mechanism
	}
	if username := os.Getenv("WIKIFARM_KAFKA_SASL_USERNAME"); username != "" {
		cfg.SASLUsername = username
	}
	if password := os.Getenv("WIKIFARM_KAFKA_SASL_PASSWORD"); password != "" {
		cfg.SASLPassword = password
	}

	if enabled := os.Getenv("WIKIFARM_KAFKA_TLS_ENABLED"); enabled != "" {
		cfg.TLSEnabled = strings.ToLower(enabled) == "true"
	}
	if skipVerify := os.Getenv("WIKIFARM_KAFKA_TLS_SKIP_VERIFY"); skipVerify != "" {
		cfg.TLSSkipVerify = strings.ToLower(skipVerify) == "true"
	}

	if size := os.Getenv("WIKIFARM_KAFKA_PRODUCER_BATCH_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			cfg.ProducerBatchSize = v
		}
	}
	if timeout := os.Getenv("WIKIFARM_KAFKA_PRODUCER_BATCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.ProducerBatchTimeout = d
		}
	}
	if compression := os.Getenv("WIKIFARM_KAFKA_PRODUCER_COMPRESSION"); compression != "" {
		cfg.ProducerCompression = compression
	}
	if topic := os.Getenv("WIKIFARM_KAFKA_JOBS_TOPIC"); topic != "" {
		cfg.JobsTopic = topic
	}

	return cfg
}

// Compression maps the configured codec name to a kafka-go codec.
func (c *Config) Compression() (kafka.Compression, error) {
	switch strings.ToLower(c.ProducerCompression) {
	case "", "none", "uncompressed":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported compression: %s", c.ProducerCompression)
	}
}

func (c *Config) saslMechanism() (sasl.Mechanism, error) {
	switch c.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.SASLUsername, c.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.SASLUsername, c.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{Username: c.SASLUsername, Password: c.SASLPassword}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", c.SASLMechanism)
	}
}

// ProducerConfig converts the configuration into producer settings.
func (c *Config) ProducerConfig() (ProducerConfig, error) {
	compression, err := c.Compression()
	if err != nil {
		return ProducerConfig{}, err
	}
	cfg := ProducerConfig{
		Brokers:      c.Brokers,
		BatchSize:    c.ProducerBatchSize,
		BatchTimeout: c.ProducerBatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Compression:  compression,
	}
	if c.SASLEnabled {
		mechanism, err := c.saslMechanism()
		if err != nil {
			return ProducerConfig{}, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		cfg.SASLMechanism = mechanism
	}
	if c.TLSEnabled {
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: c.TLSSkipVerify}
	}
	return cfg, nil
}
