package config

import (
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is loaded once at startup. Values come from the environment, with
// an optional .env file in the working directory for development.
var Config ListhouseConfig

func init() {
	godotenv.Load()

	Config = ListhouseConfig{
		Env:      Environment(envOr("LISTHOUSE_ENV", string(Dev))),
		LogLevel: envLogLevel("LISTHOUSE_LOG_LEVEL", zerolog.InfoLevel),
		Postgres: PostgresConfig{
			User:     envOr("LISTHOUSE_PG_USER", "lhn"),
			Password: os.Getenv("LISTHOUSE_PG_PASSWORD"),
			Hostname: envOr("LISTHOUSE_PG_HOST", "localhost"),
			Port:     envInt("LISTHOUSE_PG_PORT", 5432),
			DbName:   envOr("LISTHOUSE_PG_DBNAME", "lhn"),
			LogLevel: tracelog.LogLevelWarn,
			MinConn:  int32(envInt("LISTHOUSE_PG_MIN_CONN", 2)),
			MaxConn:  int32(envInt("LISTHOUSE_PG_MAX_CONN", 8)),
		},
		Spaces: SpacesConfig{
			Key:      os.Getenv("LISTHOUSE_SPACES_KEY"),
			Secret:   os.Getenv("LISTHOUSE_SPACES_SECRET"),
			Region:   envOr("LISTHOUSE_SPACES_REGION", "us-east-1"),
			Endpoint: envOr("LISTHOUSE_SPACES_ENDPOINT", "http://localhost:9003"),
			Bucket:   envOr("LISTHOUSE_SPACES_BUCKET", "attachments"),
		},
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return def
	}
	return v
}

func envLogLevel(name string, def zerolog.Level) zerolog.Level {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	level, err := zerolog.ParseLevel(v)
	if err != nil {
		return def
	}
	return level
}
