package app

import (
	"errors"
	"fmt"

	"github.com/comptox-ai/comptox-api-client/internal/config"
	"github.com/comptox-ai/comptox-api-client/internal/logger"
	"github.com/comptox-ai/comptox-api-client/internal/storage"
	"github.com/comptox-ai/comptox-api-client/pkg/api"
	"github.com/comptox-ai/comptox-api-client/pkg/query"
)

// App holds the client runtime shared by every command: the API facade, the
// query cache in front of it and the store backing both.
type App struct {
	cfg    *config.Config
	log    logger.Logger
	store  storage.Store
	client *api.Client
	cache  *query.Client
	hooks  *api.Hooks
}

// New builds the runtime from config.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	storeOpts := storage.Options{
		EntryTTL:        cfg.CacheTTL,
		CleanupInterval: cfg.CacheCleanupInterval,
	}
	store, err := storage.NewStore(cfg.CacheType, cfg.BBoltPath, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.CacheType,
		"path":                     cfg.BBoltPath,
		"entry_ttl_seconds":        int(cfg.CacheTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.CacheCleanupInterval.Seconds()),
	})

	endpoints, err := api.LoadEndpoints(cfg.EndpointsFile)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("load endpoints: %w", err), store.Close())
	}

	opts := []api.Option{
		api.WithEndpoints(endpoints),
		api.WithTimeout(cfg.RequestTimeout),
	}
	if !cfg.EncodeParams {
		opts = append(opts, api.WithRawParams())
	}
	client, err := api.New(cfg.BaseURL, opts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init api client: %w", err), store.Close())
	}

	cache := query.NewClient(query.Options{
		StaleTime: cfg.StaleTime,
		Store:     store,
		Log:       log,
	})

	log.InfoObj("api client initialized", "api_config", map[string]any{
		"base_url":           client.BaseURL(),
		"encode_params":      cfg.EncodeParams,
		"endpoints_file":     cfg.EndpointsFile,
		"request_timeout":    cfg.RequestTimeout.String(),
		"stale_time_seconds": int(cfg.StaleTime.Seconds()),
	})

	return &App{
		cfg:    cfg,
		log:    log,
		store:  store,
		client: client,
		cache:  cache,
		hooks:  api.NewHooks(client, cache),
	}, nil
}

// Client returns the API facade.
func (a *App) Client() *api.Client { return a.client }

// Hooks returns the cached accessors.
func (a *App) Hooks() *api.Hooks { return a.hooks }

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		a.log.ErrorObj("storage close failed", "error", err)
		return err
	}
	return nil
}
