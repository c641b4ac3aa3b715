// Package config loads configuration for the manager, worker, and analyzer
// binaries: env vars and an optional .env file first, CLI flags layered on
// top.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Tunable defaults (spec.md §6.6).
const (
	DefaultKeepaliveTimeout    = 120 * time.Second
	DefaultRetryInterval       = 10 * time.Second
	DefaultBlastClientDuration = 60 * time.Second
	DefaultTestDuration        = 120 * time.Second
	DefaultMaxConnectErrors    = 3
	DefaultBlastBufSize        = 32768
	DefaultAnalyzerBucketWidth = 30 * time.Second
)

// KafkaConfig configures the optional live flow-record fan-out (SPEC_FULL §3.2).
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string
	Async        bool
	MaxAttempts  int
	RequiredAcks int
}

// Enabled reports whether Kafka fan-out was configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisConfig configures the optional live flow feed pub/sub (SPEC_FULL §3.3).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Enabled reports whether the Redis feed was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// SMTPConfig configures the optional disablement email notice (SPEC_FULL §3.4).
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Enabled reports whether SMTP credentials were supplied.
func (s SMTPConfig) Enabled() bool { return s.Username != "" && s.Password != "" }

// DatabaseConfig configures the analyzer's optional bucket archive (SPEC_FULL §3.5).
type DatabaseConfig struct {
	DSN string
}

// Enabled reports whether a DSN was supplied.
func (d DatabaseConfig) Enabled() bool { return d.DSN != "" }

// ManagerConfig is the manager's configuration (spec.md §6.5).
type ManagerConfig struct {
	Host      string
	Port      int
	Debug     bool
	Duration  time.Duration
	Src       []string
	Dest      []string
	Direction string

	KeepaliveTimeout    time.Duration
	RetryInterval       time.Duration
	BlastClientDuration time.Duration
	MaxConnectErrors    int

	Kafka KafkaConfig
	Redis RedisConfig
	SMTP  SMTPConfig
}

// WorkerConfig is the worker's configuration (spec.md §6.5).
type WorkerConfig struct {
	ManagerAddr string
	WorkerPort  int
	WorkerHost  string
	Debug       bool
	Duration    time.Duration
	Daemonize   bool

	BlastBufSize int
}

// AnalyzerConfig is the analyzer's configuration (spec.md §6.5).
type AnalyzerConfig struct {
	Debug     bool
	Src       []string
	Dest      []string
	Dt        time.Duration
	LogFile   string
	OutputCSV string
	Database  DatabaseConfig
}

// stringList implements flag.Value for repeatable flags like --src/--dest.
type stringList struct {
	values *[]string
}

func (s stringList) String() string {
	if s.values == nil {
		return ""
	}
	return strings.Join(*s.values, ",")
}

func (s stringList) Set(v string) error {
	*s.values = append(*s.values, v)
	return nil
}

// LoadManagerConfig parses the manager's CLI flags, layered over env-var
// defaults (godotenv.Load is attempted first and its error ignored, exactly
// as the teacher's config.Load does).
func LoadManagerConfig(args []string) (*ManagerConfig, error) {
	_ = godotenv.Load()

	cfg := &ManagerConfig{
		KeepaliveTimeout:    DefaultKeepaliveTimeout,
		RetryInterval:       DefaultRetryInterval,
		BlastClientDuration: DefaultBlastClientDuration,
		MaxConnectErrors:    DefaultMaxConnectErrors,
	}

	fs := flag.NewFlagSet("manager", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", getEnv("MANAGER_HOST", "0.0.0.0"), "address to bind the control listener")
	fs.IntVar(&cfg.Port, "port", getEnvAsInt("MANAGER_PORT", 9000), "port for the control listener")
	fs.BoolVar(&cfg.Debug, "debug", getEnvAsBool("MANAGER_DEBUG", false), "verbose logging")
	fs.DurationVar(&cfg.Duration, "duration", getEnvAsDuration("TEST_DURATION", DefaultTestDuration), "test duration (0 = run until signalled)")
	fs.StringVar(&cfg.Direction, "direction", getEnv("BLAST_DIRECTION", "s"), "direction assigned to pairings: s|r|b")
	fs.Var(stringList{&cfg.Src}, "src", "sender network (CIDR or IP), repeatable")
	fs.Var(stringList{&cfg.Dest}, "dest", "receiver network (CIDR or IP), repeatable")

	fs.StringVar(&cfg.SMTP.Host, "smtp-host", getEnv("SMTP_HOST", ""), "SMTP host for disablement notices")
	fs.IntVar(&cfg.SMTP.Port, "smtp-port", getEnvAsInt("SMTP_PORT", 587), "SMTP port")
	fs.StringVar(&cfg.SMTP.Username, "smtp-username", getEnv("SMTP_USERNAME", ""), "SMTP username")
	fs.StringVar(&cfg.SMTP.Password, "smtp-password", getEnv("SMTP_PASSWORD", ""), "SMTP password")
	fs.StringVar(&cfg.SMTP.From, "smtp-from", getEnv("SMTP_FROM", "blastmesh@example.com"), "SMTP from address")
	fs.StringVar(&cfg.SMTP.To, "smtp-to", getEnv("SMTP_TO", ""), "SMTP notification recipient")

	var kafkaBrokers, redisAddr string
	fs.StringVar(&kafkaBrokers, "kafka-brokers", getEnv("KAFKA_BROKERS", ""), "comma-separated Kafka brokers for live flow fan-out")
	fs.StringVar(&cfg.Kafka.Topic, "kafka-topic", getEnv("KAFKA_TOPIC_FLOWS", "blastmesh.flows"), "Kafka topic for flow records")
	fs.StringVar(&redisAddr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for live flow feed")
	fs.StringVar(&cfg.Redis.Channel, "redis-channel", getEnv("REDIS_CHANNEL", "blastmesh:flows"), "Redis pub/sub channel for flow records")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if kafkaBrokers != "" {
		cfg.Kafka.Brokers = strings.Split(kafkaBrokers, ",")
		cfg.Kafka.BatchSize = getEnvAsInt("KAFKA_BATCH_SIZE", 100)
		cfg.Kafka.BatchTimeout = getEnvAsDuration("KAFKA_BATCH_TIMEOUT", 100*time.Millisecond)
		cfg.Kafka.Compression = getEnv("KAFKA_COMPRESSION", "snappy")
		cfg.Kafka.Async = getEnvAsBool("KAFKA_ASYNC", true)
		cfg.Kafka.MaxAttempts = getEnvAsInt("KAFKA_MAX_ATTEMPTS", 3)
		cfg.Kafka.RequiredAcks = getEnvAsInt("KAFKA_REQUIRED_ACKS", 1)
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
		cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
		cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)
	}

	return cfg, nil
}

// LoadWorkerConfig parses the worker's CLI flags.
func LoadWorkerConfig(args []string) (*WorkerConfig, error) {
	_ = godotenv.Load()

	cfg := &WorkerConfig{
		BlastBufSize: DefaultBlastBufSize,
	}

	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.StringVar(&cfg.ManagerAddr, "manager", getEnv("MANAGER_ADDR", ""), "manager host:port (required)")
	fs.IntVar(&cfg.WorkerPort, "worker-port", getEnvAsInt("WORKER_PORT", 0), "port for the blast server (0 = auto-assign)")
	fs.StringVar(&cfg.WorkerHost, "worker-host", getEnv("WORKER_HOST", "0.0.0.0"), "address to bind the blast server")
	fs.BoolVar(&cfg.Debug, "debug", getEnvAsBool("WORKER_DEBUG", false), "verbose logging")
	fs.DurationVar(&cfg.Duration, "duration", getEnvAsDuration("WORKER_DURATION", 0), "worker lifetime (0 = run until signalled)")
	fs.BoolVar(&cfg.Daemonize, "daemonize", getEnvAsBool("WORKER_DAEMONIZE", false), "best-effort background mode")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadAnalyzerConfig parses the analyzer's CLI flags: --debug, repeatable
// --src/--dest, --dt, and positional logfile/outputcsv (spec.md §6.5).
func LoadAnalyzerConfig(args []string) (*AnalyzerConfig, error) {
	_ = godotenv.Load()

	cfg := &AnalyzerConfig{
		Dt: DefaultAnalyzerBucketWidth,
	}

	fs := flag.NewFlagSet("analyzer", flag.ContinueOnError)
	fs.BoolVar(&cfg.Debug, "debug", getEnvAsBool("ANALYZER_DEBUG", false), "verbose logging")
	fs.DurationVar(&cfg.Dt, "dt", getEnvAsDuration("ANALYZER_DT", DefaultAnalyzerBucketWidth), "bucket width")
	fs.Var(stringList{&cfg.Src}, "src", "source network filter (CIDR or IP), repeatable")
	fs.Var(stringList{&cfg.Dest}, "dest", "destination network filter (CIDR or IP), repeatable")
	fs.StringVar(&cfg.Database.DSN, "db-dsn", getEnv("DATABASE_DSN", ""), "optional Postgres DSN to archive buckets into")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() < 2 {
		cfg.LogFile = ""
		cfg.OutputCSV = ""
	} else {
		cfg.LogFile = fs.Arg(0)
		cfg.OutputCSV = fs.Arg(1)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
