package config

import (
	"log"

	"github.com/spf13/viper"

	"github.com/finworks/refflow/internal/db"
)

// Config is the full service configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Kafka    KafkaConfig
	Audit    AuditConfig
	Policy   PolicyConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// KafkaConfig holds notification broker settings. Notifications are disabled
// when Broker is empty.
type KafkaConfig struct {
	Broker string
	Topic  string
}

// AuditConfig holds audit delivery settings.
type AuditConfig struct {
	SpoolPath string
}

// PolicyConfig holds segregation-of-duties enforcement settings.
type PolicyConfig struct {
	EnforceSoD    bool
	AllowOverride bool
}

// Load reads config.yaml from configPath with REFFLOW_-prefixed environment
// overrides (REFFLOW_DATABASE_HOST, REFFLOW_SERVER_ADDR, ...).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Kafka: KafkaConfig{
			Topic: "refflow.workflow.events",
		},
		Audit: AuditConfig{
			SpoolPath: "./data/audit-spool.jsonl",
		},
		Policy: PolicyConfig{
			EnforceSoD: true,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("REFFLOW")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("kafka.broker")
	v.BindEnv("kafka.topic")
	v.BindEnv("audit.spool_path")

	if err := v.ReadInConfig(); err != nil {
		log.Println("No config.yaml found, using defaults and env vars")
	} else {
		log.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("kafka.broker") {
		cfg.Kafka.Broker = v.GetString("kafka.broker")
	}
	if v.IsSet("kafka.topic") {
		cfg.Kafka.Topic = v.GetString("kafka.topic")
	}
	if v.IsSet("audit.spool_path") {
		cfg.Audit.SpoolPath = v.GetString("audit.spool_path")
	}
	if v.IsSet("policy.enforce_sod") {
		cfg.Policy.EnforceSoD = v.GetBool("policy.enforce_sod")
	}
	if v.IsSet("policy.allow_override") {
		cfg.Policy.AllowOverride = v.GetBool("policy.allow_override")
	}

	return cfg, nil
}
