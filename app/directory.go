// Package app wires configuration, the local cache, the backend client and
// the sync, realtime and rating components into one Directory the CLI drives.
package app

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/jawala/admin"
	"github.com/teranos/jawala/am"
	"github.com/teranos/jawala/assistant"
	"github.com/teranos/jawala/cache"
	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/httpclient"
	"github.com/teranos/jawala/logger"
	"github.com/teranos/jawala/rating"
	"github.com/teranos/jawala/realtime"
	"github.com/teranos/jawala/remote"
	smartsync "github.com/teranos/jawala/sync"
)

// Options overrides parts of the wiring. Zero values build everything from Config.
type Options struct {
	Config     *am.Config
	Logger     *zap.SugaredLogger
	Store      *cache.Store            // nil = open Config.Database
	HTTPClient *httpclient.SaferClient // nil = remote default
	Dial       realtime.Dialer         // nil = websocket
}

// Directory is a running directory client
type Directory struct {
	cfg        *am.Config
	logger     *zap.SugaredLogger
	store      *cache.Store
	client     *remote.Client
	engine     *smartsync.Engine
	state      *directory.State
	ledger     *rating.Ledger
	reconciler *realtime.Reconciler

	mu  gosync.Mutex
	sub *realtime.Subscription
}

// New builds a Directory. A cache that cannot be opened is logged and
// replaced by a disabled store; the client then runs online only.
func New(opts Options) (*Directory, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := am.Load()
		if err != nil {
			return nil, errors.Wrap(err, "load config")
		}
		cfg = loaded
	}
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("directory")
	}

	store := opts.Store
	if store == nil {
		if cfg.Database.Disabled {
			store = cache.Disabled(log.Named("cache"))
		} else {
			var err error
			store, err = cache.Open(cfg.GetDatabasePath(), log.Named("cache"))
			if err != nil {
				log.Warnw("Local cache unavailable, continuing without it", logger.FieldError, err)
			}
		}
	}

	client, err := remote.NewClient(remote.Config{
		URL:               cfg.Backend.URL,
		AnonKey:           cfg.Backend.AnonKey,
		Timeout:           cfg.Backend.RequestTimeout(),
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
		VersionRPC:        cfg.Backend.VersionRPC,
		BlockPrivateIP:    cfg.Backend.BlockPrivateIP,
		Logger:            log.Named("remote"),
		HTTPClient:        opts.HTTPClient,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	d := &Directory{
		cfg:    cfg,
		logger: log,
		store:  store,
		client: client,
		engine: smartsync.NewEngine(store, log.Named("sync")),
		state:  directory.NewState(),
		ledger: rating.NewLedger(store, log.Named("rating")),
	}
	d.reconciler = realtime.New(realtime.Config{
		URL:         client.RealtimeURL(),
		AccessToken: client.AnonKey(),
		Heartbeat:   cfg.Realtime.Heartbeat(),
		BackoffBase: cfg.Realtime.BackoffBase(),
		BackoffMax:  cfg.Realtime.BackoffMax(),
		MaxAttempts: cfg.Realtime.MaxAttempts,
		Dial:        opts.Dial,
	}, d.state, store, client, log.Named("realtime"))
	d.reconciler.OnReconnect(d.resync)
	return d, nil
}

// Load runs SmartSync and replaces the in-memory state with the result.
// Backend failures are logged; the cached snapshot is served instead.
func (d *Directory) Load(ctx context.Context) smartsync.Result {
	res := d.engine.SmartSync(ctx, d.client.FetchVersion, d.client.FetchAll)
	if res.Err != nil {
		d.logger.Warnw("Serving cached directory",
			logger.FieldError, res.Err,
			logger.FieldCount, len(res.Businesses),
		)
	}
	if ctx.Err() != nil && res.FromCache && len(res.Businesses) == 0 && len(res.Categories) == 0 {
		d.logger.Debugw("Load cancelled with nothing cached, keeping current state")
		return res
	}
	d.state.Replace(res.Categories, res.Businesses)
	return res
}

func (d *Directory) resync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res := d.Load(ctx)
	d.logger.Infow("Resynced after reconnect",
		logger.FieldAction, string(res.Action),
		logger.FieldFromCache, res.FromCache,
	)
}

// State is the in-memory directory
func (d *Directory) State() *directory.State { return d.state }

// Store is the local cache
func (d *Directory) Store() *cache.Store { return d.store }

// Client is the backend client
func (d *Directory) Client() *remote.Client { return d.client }

// Config is the configuration the directory was built from
func (d *Directory) Config() *am.Config { return d.cfg }

// Watch subscribes to the change feed. Each reconnect resyncs before new
// events are applied. Only one subscription is active at a time; a previous
// one is closed.
func (d *Directory) Watch(ctx context.Context, onChange func(types.ChangeEvent)) (*realtime.Subscription, error) {
	if !d.cfg.Realtime.Enabled {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("realtime disabled"),
			"Set realtime.enabled = true in am.toml to watch for changes.",
		)
	}
	sub, err := d.reconciler.Subscribe(ctx, onChange)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	prev := d.sub
	d.sub = sub
	d.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}
	return sub, nil
}

// OpenRating opens the rating widget for a loaded business. Accepted
// ratings patch the business aggregate in memory and in the cache.
func (d *Directory) OpenRating(ctx context.Context, businessID string) (*rating.Widget, error) {
	b, ok := d.state.Lookup(businessID)
	if !ok {
		return nil, errors.WithHint(
			errors.NewNotFoundError("business %s", businessID),
			"No business with that id. Run `jawala ls` to see listings.",
		)
	}
	return rating.Open(ctx, d.ledger, d.client, b, rating.Options{
		UserName:   d.cfg.Rating.UserName,
		OnAccepted: d.patchAggregate,
	}, d.logger.Named("rating")), nil
}

func (d *Directory) patchAggregate(ctx context.Context, agg types.Aggregate) {
	merged, ok := d.state.PatchAggregate(agg)
	if !ok {
		return
	}
	err := d.store.ApplyChange(ctx, types.ChangeEvent{
		Table:    types.TableBusinesses,
		Type:     types.ChangeUpdate,
		ID:       merged.ID,
		Business: &merged,
	})
	if err != nil && !errors.Is(err, errors.ErrStorageUnavailable) {
		d.logger.Warnw("Rating aggregate not cached", logger.FieldBusinessID, merged.ID, logger.FieldError, err)
	}
}

// Ledger is this device's rating bookkeeping
func (d *Directory) Ledger() *rating.Ledger { return d.ledger }

// Admin returns the admin service
func (d *Directory) Admin() *admin.Service {
	return admin.NewService(d.client, d.store, d.state, d.logger.Named("admin"))
}

// Assistant returns the search assistant configured from am
func (d *Directory) Assistant() *assistant.Assistant {
	temp := d.cfg.GetAssistantTemperature()
	llm := assistant.NewClient(assistant.ClientConfig{
		APIKey:      d.cfg.Assistant.APIKey,
		Model:       d.cfg.Assistant.Model,
		BaseURL:     d.cfg.Assistant.BaseURL,
		Temperature: &temp,
		Timeout:     time.Duration(d.cfg.Assistant.TimeoutSeconds) * time.Second,
		Logger:      d.logger.Named("assistant"),
	})
	return assistant.New(llm, d.state, d.logger.Named("assistant"))
}

// Close stops any subscription and closes the cache
func (d *Directory) Close() error {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	return d.store.Close()
}
