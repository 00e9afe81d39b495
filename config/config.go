package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
)

const (
	BCPModeCommand = "command"
	BCPModeCopy    = "copy"
)

type Config struct {
	AppName    string `env:"APP_NAME" envDefault:"qtlcandidateload"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	PrettyLogs bool   `env:"PRETTY_LOGS" envDefault:"false"`
	DryRun     bool   `env:"DRY_RUN" envDefault:"false"`

	// MGD database
	DatabaseUser         string `env:"MGD_DBUSER,required,notEmpty" validate:"required"`
	DatabasePasswordFile string `env:"MGD_DBPASSWORDFILE,required,notEmpty" validate:"required,file"`
	DatabaseServer       string `env:"MGD_DBSERVER,required,notEmpty" validate:"required"`
	DatabaseName         string `env:"MGD_DBNAME,required,notEmpty" validate:"required"`
	DatabasePort         int    `env:"PG_DBPORT" envDefault:"5432" validate:"min=1,max=65535"`
	DatabaseSchema       string `env:"PG_DB_SCHEMA" envDefault:"mgd" validate:"required"`
	DatabaseSSLMode      string `env:"DB_SSL_MODE" envDefault:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" validate:"omitempty,dir"`

	// Directories and tools
	OutputDir string `env:"OUTPUTDIR,required,notEmpty" validate:"required,dir"`
	ReportDir string `env:"RPTDIR,required,notEmpty" validate:"required,dir"`
	PGDBUtils string `env:"PG_DBUTILS,required,notEmpty" validate:"required"`
	BCPMode   string `env:"BCP_MODE" envDefault:"command" validate:"oneof=command copy"`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPProtocol string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc" validate:"oneof=grpc http"`

	// Single instance lock
	RedisHost     string        `env:"REDIS_HOST"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"2h" validate:"gt=0"`

	// Completion events
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"mgi.relationships" validate:"required"`

	// Read from DatabasePasswordFile.
	DatabasePassword string
}

// Load reads an optional dotenv file, then the process environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", envFile)
		}
	}
	return parse(env.Options{})
}

// LoadFrom parses cfg from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	password, err := os.ReadFile(cfg.DatabasePasswordFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read database password file")
	}
	cfg.DatabasePassword = strings.TrimSpace(string(password))

	return &cfg, nil
}

func (c *Config) Connection() database.ConnectionConfig {
	return database.ConnectionConfig{
		Host:     c.DatabaseServer,
		Port:     c.DatabasePort,
		User:     c.DatabaseUser,
		Password: c.DatabasePassword,
		Name:     c.DatabaseName,
		Schema:   c.DatabaseSchema,
		SSLMode:  c.DatabaseSSLMode,
	}
}

func (c *Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}

func (c *Config) LockEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) MigrationsEnabled() bool {
	return c.DatabaseMigrationFolderPath != ""
}
