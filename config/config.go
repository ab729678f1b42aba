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

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cardinalhq/wikifarm/internal/configcache"
	"github.com/cardinalhq/wikifarm/internal/fly"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Job drivers.
const (
	JobsDB    = "db"
	JobsKafka = "kafka"
	JobsSQS   = "sqs"
	JobsNone  = "none"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Kafka    fly.Config     `mapstructure:"kafka"`
}

type RegistryConfig struct {
	// Source is a file path, env:VAR or s3://bucket/key.
	Source string `mapstructure:"source"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	WarmConcurrency int           `mapstructure:"warm_concurrency"`
}

type JobsConfig struct {
	Driver   string `mapstructure:"driver"`
	Topic    string `mapstructure:"topic"`
	QueueURL string `mapstructure:"queue_url"`
}

func defaults() *Config {
	kafka := fly.DefaultConfig()
	return &Config{
		Registry: RegistryConfig{Source: "registry.yaml"},
		Store:    StoreConfig{Driver: StorePostgres, SQLitePath: "wikifarm.db"},
		Cache: CacheConfig{
			TTL:             configcache.DefaultTTL,
			RedisPrefix:     "wikifarm:snapshot:",
			WarmConcurrency: 8,
		},
		Jobs:  JobsConfig{Driver: JobsDB, Topic: kafka.JobsTopic},
		Kafka: *kafka,
	}
}

// Load reads configuration from a .env file, an optional config file and
// environment variables, in increasing precedence. Environment variables
// use the prefix "WIKIFARM" and the dot character in keys is replaced by
// an underscore. For example, "store.driver" becomes "WIKIFARM_STORE_DRIVER".
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	v := viper.New()
	v.SetConfigName("wikifarm")
	v.AddConfigPath(".")
	v.SetEnvPrefix("WIKIFARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}
	cfg.Kafka.JobsTopic = cfg.Jobs.Topic

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and settings a driver cannot run without.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StorePostgres, StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Jobs.Driver {
	case JobsDB, JobsNone:
	case JobsKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka job driver")
		}
	case JobsSQS:
		if c.Jobs.QueueURL == "" {
			return fmt.Errorf("jobs.queue_url is required for the sqs job driver")
		}
	default:
		return fmt.Errorf("unknown jobs driver %q", c.Jobs.Driver)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
