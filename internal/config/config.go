package config

import (
	"fmt"
	"strings"

	"github.com/staysure/service-reservation/internal/platform/config"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageMemory   = "memory"
)

// ServiceConfig holds all configuration for the reservation service.
type ServiceConfig struct {
	Port          string
	AppEnv        string
	StorageDriver string
	DBConfig      config.DatabaseConfig
	MongoConfig   config.MongoConfig
	JWTConfig     config.JWTConfig
	KafkaConfig   config.KafkaConfig
	TracingConfig config.TracingConfig

	// EnforceEscrowCaller restricts SetEscrowID to actors holding the escrow role.
	EnforceEscrowCaller bool
}

// Load reads configuration from RESERVATION_* environment variables.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("RESERVATION")
	if err != nil {
		return nil, err
	}
	v.SetDefault("SERVICE_PORT", "8004")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("DB_NAME", "reservation_db")
	v.SetDefault("MONGO_DATABASE", "reservation_db")
	v.SetDefault("ENFORCE_ESCROW_CALLER", false)

	driver := strings.ToLower(v.GetString("STORAGE_DRIVER"))
	switch driver {
	case StoragePostgres, StorageMongo, StorageMemory:
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	return &ServiceConfig{
		Port:                config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:              config.GetAppEnv(v),
		StorageDriver:       driver,
		DBConfig:            config.LoadDatabaseConfig(v, "DB_NAME"),
		MongoConfig:         config.LoadMongoConfig(v),
		JWTConfig:           config.LoadJWTConfig(v),
		KafkaConfig:         config.LoadKafkaConfig(v),
		TracingConfig:       config.LoadTracingConfig(v),
		EnforceEscrowCaller: v.GetBool("ENFORCE_ESCROW_CALLER"),
	}, nil
}

// ConsumerGroup returns the Kafka consumer group id for name, with the configured prefix.
func (c *ServiceConfig) ConsumerGroup(name string) string {
	if c.KafkaConfig.GroupPrefix == "" {
		return name
	}
	return c.KafkaConfig.GroupPrefix + "." + name
}
