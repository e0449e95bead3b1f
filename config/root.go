package config

import "time"

type AppInfo struct {
	Name    string `config:"name" validate:"required"`
	Version string `config:"version" validate:"required"`
}

// ServerConfig drives the connection-level HTTP server.
type ServerConfig struct {
	Address      string        `config:"address"`
	Port         int           `config:"port" validate:"min=0,max=65535"`
	Mode         string        `config:"mode" validate:"oneof=concurrent serial"`
	Workers      int           `config:"workers" validate:"min=0"`
	ReadTimeout  time.Duration `config:"readTimeout"`
	WriteTimeout time.Duration `config:"writeTimeout"`
	IdleTimeout  time.Duration `config:"idleTimeout"`
	MaxBodyBytes int64         `config:"maxBodyBytes" validate:"min=0"`
}

type CacheConfig struct {
	Root      string `config:"root" validate:"required"`
	Capacity  int    `config:"capacity" validate:"min=1"`
	IOWorkers int    `config:"ioWorkers" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `config:"level" validate:"oneof=debug info warn error"`
	Format string `config:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	Enabled bool `config:"enabled"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `config:"metrics"`
}

// ActuatorConfig controls the admin endpoints, served on their own listener.
type ActuatorConfig struct {
	Enabled  bool   `config:"enabled"`
	Addr     string `config:"addr" validate:"required_if=Enabled true"`
	BasePath string `config:"basePath" validate:"omitempty,startswith=/"`
}

type Root struct {
	App           AppInfo             `config:"app"`
	Server        ServerConfig        `config:"server"`
	Cache         CacheConfig         `config:"cache"`
	Logging       LoggingConfig       `config:"logging"`
	Observability ObservabilityConfig `config:"observability"`
	Actuator      ActuatorConfig      `config:"actuator"`
}
