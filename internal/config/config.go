package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/sentinel"
)

// Transport names the channel events take from ingestion to the worker.
type Transport string

const (
	TransportBus   Transport = "bus"
	TransportKafka Transport = "kafka"
	TransportAMQP  Transport = "amqp"
)

type Kafka struct {
	BootstrapServers  []string `yaml:"bootstrap_servers"`
	Topic             string   `yaml:"topic"`
	GroupID           string   `yaml:"group_id"`
	ClientID          string   `yaml:"client_id"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

type AMQP struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

type Sentinel struct {
	ProjectName  string `yaml:"project_name"`
	MinimumLevel string `yaml:"minimum_level"`
}

type Dedup struct {
	Window   time.Duration `yaml:"window"`
	Capacity int           `yaml:"capacity"`
}

// Config contains runtime configuration for both binaries.
type Config struct {
	HTTPAddr     string    `yaml:"http_addr"`
	DBURL        string    `yaml:"db_url"`
	IngestAPIKey string    `yaml:"ingest_api_key"`
	Transport    Transport `yaml:"transport"`
	LogFormat    string    `yaml:"log_format"`
	LogLevel     string    `yaml:"log_level"`

	Sentinel Sentinel `yaml:"sentinel"`
	Kafka    Kafka    `yaml:"kafka"`
	AMQP     AMQP     `yaml:"amqp"`
	Dedup    Dedup    `yaml:"dedup"`
}

func defaults() Config {
	return Config{
		HTTPAddr:  ":8080",
		Transport: TransportBus,
		LogFormat: "json",
		LogLevel:  "info",
		Sentinel: Sentinel{
			ProjectName:  sentinel.DefaultProjectName,
			MinimumLevel: logevent.LevelWarning.String(),
		},
		Kafka: Kafka{
			Topic:             "ergonaut.logs",
			GroupID:           "ergonaut-sentinel",
			ClientID:          "ergonaut",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		AMQP: AMQP{
			Exchange: "ergonaut.logs",
			Queue:    "ergonaut-sentinel",
		},
		Dedup: Dedup{Window: 5 * time.Minute, Capacity: 10000},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $SENTINEL_CONFIG when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("SENTINEL_CONFIG"))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("DB_URL", &cfg.DBURL)
	str("INGEST_API_KEY", &cfg.IngestAPIKey)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("SENTINEL_PROJECT_NAME", &cfg.Sentinel.ProjectName)
	str("SENTINEL_MINIMUM_LEVEL", &cfg.Sentinel.MinimumLevel)
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("KAFKA_GROUP_ID", &cfg.Kafka.GroupID)
	str("KAFKA_CLIENT_ID", &cfg.Kafka.ClientID)
	str("AMQP_URL", &cfg.AMQP.URL)
	str("AMQP_EXCHANGE", &cfg.AMQP.Exchange)
	str("AMQP_QUEUE", &cfg.AMQP.Queue)

	if v, ok := lookup("SENTINEL_TRANSPORT"); ok {
		cfg.Transport = Transport(strings.ToLower(v))
	}
	if v, ok := lookup("KAFKA_BOOTSTRAP_SERVERS"); ok {
		cfg.Kafka.BootstrapServers = splitList(v)
	}

	if v, ok := lookup("KAFKA_TOPIC_PARTITIONS"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("KAFKA_TOPIC_PARTITIONS must be a positive integer, got %q", v)
		}
		cfg.Kafka.Partitions = int32(n)
	}
	if v, ok := lookup("KAFKA_REPLICATION_FACTOR"); ok {
		n, err := strconv.ParseInt(v, 10, 16)
		if err != nil || n <= 0 {
			return fmt.Errorf("KAFKA_REPLICATION_FACTOR must be a positive integer, got %q", v)
		}
		cfg.Kafka.ReplicationFactor = int16(n)
	}
	if v, ok := lookup("DEDUP_WINDOW"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("DEDUP_WINDOW must be a positive duration, got %q", v)
		}
		cfg.Dedup.Window = d
	}
	if v, ok := lookup("DEDUP_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("DEDUP_CAPACITY must be a positive integer, got %q", v)
		}
		cfg.Dedup.Capacity = n
	}
	return nil
}

// lookup treats blank variables as unset.
func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportBus:
	case TransportKafka:
		if len(c.Kafka.BootstrapServers) == 0 {
			errs = append(errs, errors.New("KAFKA_BOOTSTRAP_SERVERS required for kafka transport"))
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, errors.New("KAFKA_TOPIC required for kafka transport"))
		}
	case TransportAMQP:
		if c.AMQP.URL == "" {
			errs = append(errs, errors.New("AMQP_URL required for amqp transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want bus, kafka or amqp)", c.Transport))
	}
	if _, err := c.SentinelConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SentinelConfig converts the sentinel section into the worker's config.
func (c Config) SentinelConfig() (sentinel.Config, error) {
	lvl, err := logevent.ParseLevel(c.Sentinel.MinimumLevel)
	if err != nil {
		return sentinel.Config{}, fmt.Errorf("SENTINEL_MINIMUM_LEVEL: %w", err)
	}
	sc := sentinel.Config{ProjectName: strings.TrimSpace(c.Sentinel.ProjectName), MinimumLevel: lvl}
	if err := sc.Validate(); err != nil {
		return sentinel.Config{}, err
	}
	return sc, nil
}
