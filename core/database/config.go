package database

import (
	"fmt"

	coreconfig "github.com/m3rciful/weatherbot/core/config"
)

const (
	// DriverPostgres selects PostgreSQL via lib/pq.
	DriverPostgres = coreconfig.StoragePostgres
	// DriverSQLite selects the embedded pure-Go SQLite engine.
	DriverSQLite = coreconfig.StorageSQLite
)

// Config holds database connection settings.
type Config struct {
	Driver string
	// Path is the SQLite file; ":memory:" keeps the database in process.
	Path string

	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConnections int
}

// FromStorage maps the storage section of the service config.
func FromStorage(s coreconfig.StorageConfig) Config {
	return Config{
		Driver:         s.Driver,
		Path:           s.SQLitePath,
		Host:           s.Postgres.Host,
		Port:           s.Postgres.Port,
		User:           s.Postgres.User,
		Password:       s.Postgres.Password,
		Name:           s.Postgres.Name,
		SSLMode:        s.Postgres.SSLMode,
		MaxConnections: s.Postgres.MaxConnections,
	}
}

func (c Config) postgresDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

func (c Config) postgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}
