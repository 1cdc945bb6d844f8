package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"

	"go-fprint-manager/accounts"
	"go-fprint-manager/fprint"
	"go-fprint-manager/logging"
	"go-fprint-manager/metrics"
	"go-fprint-manager/redis"
	"go-fprint-manager/ws"
)

type AuthConfig struct {
	AdminUsername     string `json:"admin_username"`
	AdminPasswordHash string `json:"admin_password_hash"`
	JwtSecretPath     string `json:"jwt_secret_path"`
	TokenTTLMinutes   int    `json:"token_ttl_minutes,omitempty"`
}

type Config struct {
	ServerConfig ServerConfig `json:"server_config"`

	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`

	// BusAddress overrides the system bus, for running against a test bus.
	BusAddress string `json:"bus_address,omitempty"`

	Auth AuthConfig `json:"auth"`

	StorageType         string                    `json:"storage_type"`
	RedisConfig         redis.RedisConfig         `json:"redis_config,omitempty"`
	RedisSentinelConfig redis.RedisSentinelConfig `json:"redis_sentinel_config,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "Path for the config.json to use")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "please provide a config path using the --config flag")
		os.Exit(1)
	}

	config, err := readConfigFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config file: %v\n", err)
		os.Exit(1)
	}

	logging.InitLoggerTo(os.Stderr, config.LogLevel, config.LogFormat)
	slog.Info("using config", "path", *configPath)
	slog.Info("hosting on", "host", config.ServerConfig.Host, "port", config.ServerConfig.Port)

	tokenTTL := 1 * time.Hour
	if config.Auth.TokenTTLMinutes > 0 {
		tokenTTL = time.Duration(config.Auth.TokenTTLMinutes) * time.Minute
	}

	tokens, err := NewHMACTokenIssuer(config.Auth.JwtSecretPath, tokenTTL)
	if err != nil {
		slog.Error("failed to instantiate token issuer", "error", err)
		os.Exit(1)
	}

	if config.Auth.AdminUsername == "" || config.Auth.AdminPasswordHash == "" {
		slog.Error("auth.admin_username and auth.admin_password_hash must be configured")
		os.Exit(1)
	}
	authenticator := NewAdminAuthenticator(config.Auth.AdminUsername, config.Auth.AdminPasswordHash)

	sessions, err := createSessionStorage(&config)
	if err != nil {
		slog.Error("failed to instantiate session storage", "error", err)
		os.Exit(1)
	}

	conn, err := connectBus(config.BusAddress)
	if err != nil {
		slog.Error("failed to connect to the system bus", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	streams := ws.NewHub()
	fingerprints := NewFprintService(fprint.NewManager(conn))
	runner := NewEnrollRunner(fingerprints, streams, collector)

	serverState := ServerState{
		fingerprints:   fingerprints,
		accounts:       NewAccountsService(accounts.NewClient(conn)),
		sessions:       sessions,
		tokens:         tokens,
		authenticator:  authenticator,
		streams:        streams,
		runner:         runner,
		metrics:        collector,
		metricsHandler: metrics.Handler(registry),
		tokenTTL:       tokenTTL,
	}

	server, err := NewServer(&serverState, config.ServerConfig)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("failed to listen and serve", "error", err)
		os.Exit(1)
	}
}

func connectBus(address string) (*dbus.Conn, error) {
	if address != "" {
		slog.Info("connecting to configured bus", "address", address)
		return dbus.Connect(address)
	}
	return dbus.SystemBus()
}

func readConfigFile(path string) (Config, error) {
	configBytes, err := os.ReadFile(path)

	if err != nil {
		return Config{}, err
	}

	var config Config
	err = json.Unmarshal(configBytes, &config)

	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func createSessionStorage(config *Config) (SessionStorage, error) {
	if config.StorageType == "redis" {
		slog.Info("Using redis session storage")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSessionStorage(client, config.RedisConfig.Namespace), nil
	}
	if config.StorageType == "redis_sentinel" {
		slog.Info("Using redis sentinel session storage")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisSessionStorage(client, config.RedisSentinelConfig.Namespace), nil
	}
	if config.StorageType == "memory" {
		slog.Info("Using in memory session storage")
		return NewInMemorySessionStorage(), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}
