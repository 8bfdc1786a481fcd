package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit    string          `yaml:"git_commit" envconfig:"LIBAPI_GIT_COMMIT"`
	GitTag       string          `yaml:"git_tag" envconfig:"LIBAPI_GIT_TAG"`
	BuildTime    string          `yaml:"build_time" envconfig:"LIBAPI_BUILD_TIME"`
	IsProduction bool            `yaml:"is_production" envconfig:"LIBAPI_IS_PRODUCTION"`
	LogLevel     zapcore.Level   `yaml:"log_level" envconfig:"LIBAPI_LOG_LEVEL"`
	LogFolder    string          `yaml:"log_folder" envconfig:"LIBAPI_LOG_FOLDER"`
	LogMaxSize   int             `yaml:"log_max_size" envconfig:"LIBAPI_LOG_MAX_SIZE"`
	Storage      StorageConfig   `yaml:"storage"`
	BoltDB       BoltDBConfig    `yaml:"boltdb"`
	Postgres     PostgresConfig  `yaml:"postgres"`
	Redis        RedisConfig     `yaml:"redis"`
	Mail         MailConfig      `yaml:"mail"`
	Scheduler    SchedulerConfig `yaml:"scheduler"`
}

// StorageConfig selects the backend holding books and loans records.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"LIBAPI_STORAGE_BACKEND"`
}

type BoltDBConfig struct {
	FilePath string        `yaml:"filepath" envconfig:"LIBAPI_BOLTDB_FILE_PATH"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"LIBAPI_BOLTDB_TIMEOUT"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host" envconfig:"LIBAPI_POSTGRES_HOST"`
	Port            string        `yaml:"port" envconfig:"LIBAPI_POSTGRES_PORT"`
	Username        string        `yaml:"username" envconfig:"LIBAPI_POSTGRES_USERNAME"`
	Password        string        `yaml:"password" envconfig:"LIBAPI_POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" envconfig:"LIBAPI_POSTGRES_DATABASE"`
	SSLMode         string        `yaml:"ssl_mode" envconfig:"LIBAPI_POSTGRES_SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"LIBAPI_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"LIBAPI_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"LIBAPI_POSTGRES_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"LIBAPI_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"LIBAPI_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"LIBAPI_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"LIBAPI_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"LIBAPI_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"LIBAPI_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"LIBAPI_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"LIBAPI_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"LIBAPI_REDIS_PASSWORD"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"LIBAPI_REDIS_DATABASE_INDEX"`
}

// MailConfig carries the outbound notification settings. The message is
// the free-text body sent to every late customer. The transport is either
// `log` (development, mails end in the logs) or `redis` (mails are pushed
// onto the outbox queue and delivered by the outbox consumer).
type MailConfig struct {
	Sender      string        `yaml:"sender" envconfig:"LIBAPI_MAIL_SENDER"`
	Subject     string        `yaml:"subject" envconfig:"LIBAPI_MAIL_SUBJECT"`
	Message     string        `yaml:"message" envconfig:"LIBAPI_MAIL_MESSAGE"`
	Transport   string        `yaml:"transport" envconfig:"LIBAPI_MAIL_TRANSPORT"`
	SendTimeout time.Duration `yaml:"send_timeout" envconfig:"LIBAPI_MAIL_SEND_TIMEOUT"`
}

// SchedulerConfig drives the periodic overdue loans notification job.
// GraceDays is the number of days after issuance before an active
// loan is considered late.
type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval" envconfig:"LIBAPI_SCHEDULER_INTERVAL"`
	GraceDays int           `yaml:"grace_days" envconfig:"LIBAPI_SCHEDULER_GRACE_DAYS"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Storage.Backend) == 0 {
		config.Storage.Backend = BackendBolt
	}

	if config.Storage.Backend != BackendBolt && config.Storage.Backend != BackendPostgres {
		return fmt.Errorf("unknown storage backend %q. use %q or %q", config.Storage.Backend, BackendBolt, BackendPostgres)
	}

	if config.Storage.Backend == BackendBolt && len(config.BoltDB.FilePath) == 0 {
		return errors.New("make sure to set the boltdb file path in configuration file")
	}

	if config.Storage.Backend == BackendPostgres &&
		(len(config.Postgres.Host) == 0 || len(config.Postgres.Port) == 0 || len(config.Postgres.Database) == 0) {
		return errors.New("make sure to set valid postgres address, port and database in configuration file")
	}

	if len(config.Mail.Transport) == 0 {
		config.Mail.Transport = TransportLog
	}

	if config.Mail.Transport != TransportLog && config.Mail.Transport != TransportRedis {
		return fmt.Errorf("unknown mail transport %q. use %q or %q", config.Mail.Transport, TransportLog, TransportRedis)
	}

	if config.Mail.Transport == TransportRedis &&
		(len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0) {
		return errors.New("make sure to set valid redis address and port in configuration file")
	}

	if len(config.Mail.Sender) == 0 {
		return errors.New("make sure to set the notifications sender address in configuration file")
	}

	if len(config.Mail.Subject) == 0 {
		config.Mail.Subject = "Delayed loan"
	}

	if config.Mail.SendTimeout <= 0 {
		config.Mail.SendTimeout = 10 * time.Second
	}

	if config.Scheduler.Interval <= 0 {
		config.Scheduler.Interval = 24 * time.Hour
	}

	if config.Scheduler.GraceDays == 0 {
		config.Scheduler.GraceDays = 4
	}

	if config.Scheduler.GraceDays < 0 {
		return errors.New("make sure to set a positive overdue grace period in configuration file")
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration when the dotenv file is present.
	if _, serr := os.Stat("./config.env"); serr == nil {
		if err = godotenv.Load("./config.env"); err != nil {
			return config, fmt.Errorf("failed to set environment configurations: %s", err)
		}
	}

	// Use environment variables with prefix `LIBAPI`.
	err = LoadConfigEnvs("LIBAPI", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
