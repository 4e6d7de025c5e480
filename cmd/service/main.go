package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/2beens/repcounter/internal"
	"github.com/2beens/repcounter/internal/config"
	"github.com/2beens/repcounter/internal/logging"

	log "github.com/sirupsen/logrus"
)

// secrets are never put in the config file
type secrets struct {
	sentryDSN        string
	redisPassword    string
	honeycombEnabled bool
}

func secretsFromEnv(cfg *config.Config) secrets {
	s := secrets{
		sentryDSN:        os.Getenv("SENTRY_DSN"),
		redisPassword:    os.Getenv("REPCOUNTER_REDIS_PASS"),
		honeycombEnabled: os.Getenv("HONEYCOMB_ENABLED") == "true",
	}

	if cfg.SentryEnabled && s.sentryDSN == "" {
		log.Errorln("sentry enabled, but dsn not set. use SENTRY_DSN")
	}
	usesRedis := cfg.Storage == config.StorageRedis || cfg.SessionsCreateRateLimit > 0
	if usesRedis && s.redisPassword == "" {
		log.Warnln("redis password not set. use REPCOUNTER_REDIS_PASS")
	}
	if s.honeycombEnabled {
		if os.Getenv("HONEYCOMB_API_KEY") == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
		if os.Getenv("OTEL_SERVICE_NAME") == "" {
			log.Warnln("OTEL_SERVICE_NAME env var not set")
		}
	}

	return s
}

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	if err := run(*env, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "repcounter: %s\n", err)
		os.Exit(1)
	}
}

func run(env, configPath string) error {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return err
	}

	envSecrets := secretsFromEnv(cfg)

	logsCleanup, err := logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled && envSecrets.sentryDSN != "",
		SentryDSN:        envSecrets.sentryDSN,
		SentryServerName: "repcounter-service",
	})
	defer logsCleanup()
	if err != nil {
		log.Errorf("logging setup: %s", err)
	}

	log.Warnf("---->> running in [%s] environment, storage [%s]", cfg.Environment, cfg.Storage)

	versionInfo := vcsRevision()
	log.Debugf("running version: %s", versionInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := internal.NewServer(ctx, internal.NewServerParams{
		Config:                  cfg,
		VersionInfo:             versionInfo,
		RedisPassword:           envSecrets.redisPassword,
		HoneycombTracingEnabled: envSecrets.honeycombEnabled,
	})
	if err != nil {
		return fmt.Errorf("new server: %w", err)
	}

	server.Serve(cfg.Host, cfg.Port)

	<-ctx.Done()
	log.Warnln("stop signal received, shutting down ...")

	server.GracefulShutdown()
	return nil
}

// vcsRevision returns the commit the binary was built from, "dev" when unknown.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	revision, dirty := "", false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}
