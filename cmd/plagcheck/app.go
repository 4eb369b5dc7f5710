package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/plagcheck-client/pkg/cache"
	"github.com/Sternrassler/plagcheck-client/pkg/client"
	"github.com/Sternrassler/plagcheck-client/pkg/config"
	"github.com/Sternrassler/plagcheck-client/pkg/logging"
	"github.com/Sternrassler/plagcheck-client/pkg/session"
)

// app holds the dependencies shared by all commands. They are built once in
// the root command's PersistentPreRunE.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	envFile    string

	cfg      *config.Config
	sessions *session.Store
	client   *client.CachedClient
	logger   zerolog.Logger

	closers []func() error
}

func (a *app) open(cmd *cobra.Command) error {
	loader := config.NewLoader(a.configFile).WithEnvFile(a.envFile)
	v := loader.Viper()
	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"api.base_url":  "base-url",
		"api.retries":   "retries",
		"cache.backend": "cache-backend",
		"session.path":  "session-path",
		"log.level":     "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: a.stderr,
	})
	a.logger = logging.NewLogger(logging.ComponentCLI)

	sessions, err := session.Open(cfg.Session.Path)
	if err != nil {
		return err
	}
	a.sessions = sessions
	a.closers = append(a.closers, sessions.Close)

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}

	tcfg := client.DefaultTransportConfig(cfg.API.BaseURL)
	tcfg.UserAgent = cfg.API.UserAgent
	tcfg.Timeout = cfg.API.Timeout
	tcfg.Tokens = sessions
	if cfg.API.Retries > 1 {
		tcfg.Retry = client.DefaultRetryConfig()
		tcfg.Retry.MaxAttempts = cfg.API.Retries
	}
	transport, err := client.NewHTTPTransport(tcfg)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	a.client = client.New(transport, cache.New(store, cfg.Cache.Policy()))

	a.logger.Debug().
		Str("base_url", cfg.API.BaseURL).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("Client ready")
	return nil
}

func (a *app) openStore(ctx context.Context) (cache.Store, error) {
	if a.cfg.Cache.Backend != config.BackendRedis {
		return cache.NewMemoryStore(), nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr: a.cfg.Cache.RedisAddr,
		DB:   a.cfg.Cache.RedisDB,
	})
	a.closers = append(a.closers, rc.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Cache.RedisAddr, err)
	}
	return newRedisStore(rc, a.cfg.Cache.Policy()), nil
}

// newRedisStore keeps Redis entries at least as long as the policy can serve them.
func newRedisStore(rc *redis.Client, policy cache.Policy) *cache.RedisStore {
	return cache.NewRedisStore(rc).WithRetention(policy.MaxTTL())
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
