package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"strings"
	"sync"
	"time"

	"github.com/castwave/client/pkg/api"
	"github.com/castwave/client/pkg/auth"
	"github.com/castwave/client/pkg/observability"
	"github.com/castwave/client/pkg/persist"
	"github.com/castwave/client/pkg/podcast"
	"github.com/castwave/client/pkg/query"
	cwredis "github.com/castwave/client/pkg/redis"
	"github.com/castwave/client/pkg/refresh"
	"github.com/castwave/client/pkg/remote"
	"github.com/castwave/client/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service encapsulates the client application
type Service struct {
	config *Config
	log    logrus.FieldLogger

	redisClient *redis.Client
	sessions    auth.SessionStore
	tokens      auth.Chain
	client      *remote.Client
	store       *query.Store
	podcasts    *podcast.API
	refresh     *refresh.Scheduler
	api         api.Service

	// Servers
	healthServer *http.Server
	pprofServer  *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new client application
func NewService(log logrus.FieldLogger, cfg *Config) (*Service, error) {
	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Service{
		config: cfg,
		log:    log,
	}

	tokens := auth.Chain{}

	var storeOpts []query.Option

	if cfg.Redis.Enabled {
		redisClient, err := cwredis.NewClient(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}

		a.redisClient = redisClient

		sessions := auth.NewRedisSessionStore(log, redisClient, cfg.Redis.PrefixKey(cfg.Auth.SessionKey))
		a.sessions = sessions
		tokens = append(tokens, sessions)

		if cfg.Cache.Persist {
			storeOpts = append(storeOpts, query.WithPersister(
				persist.NewRedisPersister(log, redisClient, cfg.Redis.PrefixKey("query:"), cfg.Cache.PersistTTL),
			))
		}
	}

	tokens = append(tokens, auth.NewStaticSource(cfg.Auth.Token))
	a.tokens = tokens

	client, err := remote.NewClient(&cfg.Remote, tokens, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	a.client = client

	storeOpts = append(storeOpts, query.WithDefaultFetcher(client.Fetch))
	storeOpts = append(storeOpts, cfg.Cache.Options()...)
	a.store = query.NewStore(log, storeOpts...)

	podcastOpts := []podcast.Option{}
	if a.sessions != nil {
		podcastOpts = append(podcastOpts, podcast.WithSessionStore(a.sessions))
	}

	if cfg.Storage.BaseURL != "" {
		resolver, err := storage.NewResolver(&cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage resolver: %w", err)
		}

		podcastOpts = append(podcastOpts, podcast.WithStorage(resolver))
	}

	a.podcasts = podcast.New(client, a.store, log, podcastOpts...)

	if cfg.Refresh.Enabled {
		scheduler, err := refresh.NewScheduler(log, &cfg.Refresh, &prefixResolver{store: a.store, client: client})
		if err != nil {
			return nil, fmt.Errorf("failed to create refresh scheduler: %w", err)
		}

		a.refresh = scheduler
	}

	a.api = api.NewService(&cfg.API, a.store, client.Owns, log)

	return a, nil
}

// Store returns the query store
func (a *Service) Store() *query.Store {
	return a.store
}

// Client returns the remote API client
func (a *Service) Client() *remote.Client {
	return a.client
}

// CurrentUser returns the identity of the signed-in user, or auth.ErrNoToken
// when no session is available.
func (a *Service) CurrentUser(ctx context.Context) (auth.User, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return auth.User{}, err
	}

	return auth.IdentityFromToken(token)
}

// Podcasts returns the typed podcast API
func (a *Service) Podcasts() *podcast.API {
	return a.podcasts
}

// Start hydrates the cache and starts the background services
func (a *Service) Start(ctx context.Context) error {
	a.log.Info("Starting castwave client...")

	ctx, a.cancel = context.WithCancel(ctx)

	if a.redisClient != nil {
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	n, err := a.store.Hydrate(ctx)
	if err != nil {
		a.log.WithError(err).Warn("Failed to hydrate query cache, starting cold")
	} else if n > 0 {
		a.log.WithField("records", n).Info("Hydrated query cache")
	}

	// Start metrics server
	if a.config.MetricsAddr != "" {
		observability.StartMetricsServer(a.config.MetricsAddr)
		a.log.WithField("addr", a.config.MetricsAddr).Info("Started metrics server")
	}

	// Start health check server if configured
	if a.config.HealthCheckAddr != "" {
		a.startHealthCheck()
	}

	// Start pprof server if configured
	if a.config.PProfAddr != "" {
		a.startPProf()
	}

	if a.refresh != nil {
		a.wg.Add(1)

		go func() {
			defer a.wg.Done()

			if err := a.refresh.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.WithError(err).Error("Refresh scheduler failed")
			}
		}()
	}

	// Start inspection API
	if err := a.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API service: %w", err)
	}

	a.log.Info("Castwave client started successfully")

	return nil
}

// Stop gracefully shuts down the client
func (a *Service) Stop() error {
	a.log.Info("Shutting down castwave client...")

	// Create a timeout context for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Helper function to stop a service
	stopService := func(name string, stopFunc func() error) {
		if stopFunc == nil {
			return
		}
		if err := stopFunc(); err != nil {
			a.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// 1. Stop refreshing (no new fetches)
	if a.refresh != nil {
		stopService("refresh scheduler", a.refresh.Stop)
	}

	if a.cancel != nil {
		a.cancel()
	}

	a.wg.Wait()

	// 2. Stop API
	if a.api != nil {
		stopService("API service", a.api.Stop)
	}

	// 3. Close the store (cancels fetches it started)
	if a.store != nil {
		a.store.Close()
	}

	// 4. Close Redis (now safe, nothing is using it)
	if a.redisClient != nil {
		stopService("Redis client", a.redisClient.Close)
	}

	// Stop HTTP servers
	if a.config.MetricsAddr != "" {
		stopService("metrics server", func() error { return observability.StopMetricsServer(ctx) })
	}
	if a.healthServer != nil {
		stopService("health check server", func() error { return a.healthServer.Shutdown(ctx) })
	}
	if a.pprofServer != nil {
		stopService("pprof server", func() error { return a.pprofServer.Shutdown(ctx) })
	}

	return nil
}

func (a *Service) startHealthCheck() {
	a.log.WithField("addr", a.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	a.healthServer = &http.Server{
		Addr:              a.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (a *Service) startPProf() {
	a.log.WithField("addr", a.config.PProfAddr).Info("Starting pprof server")

	a.pprofServer = &http.Server{
		Addr:              a.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	go func() {
		if err := a.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Pprof server failed")
		}
	}()
}

// prefixResolver lets refresh schedules name API paths ("podcasts/liked")
// instead of full URLs.
type prefixResolver struct {
	store  *query.Store
	client *remote.Client
}

func (p *prefixResolver) InvalidatePrefix(prefix string) int {
	return p.store.InvalidatePrefix(p.resolve(prefix))
}

func (p *prefixResolver) Evict() int {
	return p.store.Evict()
}

func (p *prefixResolver) resolve(prefix string) string {
	if prefix == "" || strings.Contains(prefix, "://") {
		return prefix
	}

	return p.client.Endpoint(prefix)
}
