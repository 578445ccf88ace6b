package entrypoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrlokans/shelfscan/internal/backend"
	"github.com/mrlokans/shelfscan/internal/collection"
	"github.com/mrlokans/shelfscan/internal/config"
	"github.com/mrlokans/shelfscan/internal/covers"
	"github.com/mrlokans/shelfscan/internal/credstore"
	"github.com/mrlokans/shelfscan/internal/database"
	"github.com/mrlokans/shelfscan/internal/database/kv"
	"github.com/mrlokans/shelfscan/internal/database/scans"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/identity"
	"github.com/mrlokans/shelfscan/internal/library"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/scanner"
	"github.com/mrlokans/shelfscan/internal/tagging"
	"github.com/mrlokans/shelfscan/internal/workers"
)

// App owns every long-lived component. Both the companion API and the CLI
// commands run on top of one.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *database.Database
	Pool     *workers.Pool
	Client   *backend.Client
	Cache    *collection.Cache
	History  *scans.Repository
	Covers   *covers.Cache // nil when thumbnail caching is disabled
	Identity *identity.FileProvider
	Library  *library.Library

	cancel context.CancelFunc
}

// NewApp opens the database and wires the sync client, the collection mirror
// and the library service. The collection is not loaded until Start.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store, err := credstore.New(ctx, kv.NewRepository(db.DB), credstore.Config{
		EncryptionKey: cfg.Credentials.Key,
		Passphrase:    cfg.Credentials.Passphrase,
		KeyFilePath:   cfg.Credentials.KeyFile,
	}, credstore.WithLogger(logger.With("component", "credstore")))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	provider := identity.NewFileProvider(cfg.Backend.Provider, cfg.Identity.TokenFile)
	pool := workers.New(cfg.Sync.Workers, logger.With("component", "workers"))

	client := backend.New(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		UserAgent: cfg.Backend.UserAgent,
	}, store, provider,
		backend.WithLogger(logger.With("component", "backend")),
		backend.WithPool(pool),
	)

	cache := collection.New(client, pool, collection.WithLogger(logger.With("component", "collection")))
	runCtx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := cache.Run(runCtx); err != nil {
			logger.Error("collection cache stopped", "error", err)
		}
	}()

	history := scans.NewRepository(db.DB)
	opts := []library.Option{
		library.WithHistory(history),
		library.WithAutoTags(cfg.Sync.AutoTags...),
		library.WithLogger(logger.With("component", "library")),
	}
	if cfg.Metadata.Enabled {
		opts = append(opts, library.WithMetadata(newMetadataLookup(cfg, logger)))
	}

	lib := library.New(
		&rememberingAccount{Client: client, provider: provider, logger: logger},
		cache,
		tagging.NewReconciler(client, cache, logger.With("component", "tagging")),
		scanner.NewDeduplicator(),
		opts...,
	)

	var thumbnails *covers.Cache
	if cfg.Covers.Enabled {
		thumbnails, err = covers.New(cfg.CoversDir(),
			covers.WithUserAgent(cfg.Backend.UserAgent),
			covers.WithLogger(logger.With("component", "covers")),
		)
		if err != nil {
			logger.Warn("thumbnail cache disabled", "error", err)
			thumbnails = nil
		}
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Pool:     pool,
		Client:   client,
		Cache:    cache,
		History:  history,
		Covers:   thumbnails,
		Identity: provider,
		Library:  lib,
		cancel:   cancel,
	}, nil
}

func newMetadataLookup(cfg *config.Config, logger *slog.Logger) *metadata.Lookup {
	return metadata.NewLookup(logger.With("component", "metadata"),
		metadata.NewGoogleBooksClient(cfg.Metadata.GoogleBooksURL, cfg.Metadata.RatePerSecond, cfg.Backend.UserAgent),
		metadata.NewOpenLibraryClient(cfg.Metadata.OpenLibraryURL, cfg.Metadata.RatePerSecond, cfg.Backend.UserAgent),
	)
}

// Start prunes old scan history and loads the collection when a session is
// stored. Cached thumbnails of books no longer in the collection are dropped.
func (a *App) Start(ctx context.Context) error {
	if days := a.Config.Sync.HistoryDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		if n, err := a.History.DeleteOlderThan(ctx, cutoff); err != nil {
			a.Logger.Warn("failed to prune scan history", "error", err)
		} else if n > 0 {
			a.Logger.Info("pruned scan history", "deleted", n, "older_than_days", days)
		}
	}
	if err := a.Library.Start(ctx); err != nil {
		return err
	}
	if _, signedIn := a.Library.Profile(ctx); signedIn && a.Covers != nil {
		if n, err := a.Covers.Prune(a.Library.Books()); err != nil {
			a.Logger.Warn("failed to prune thumbnails", "error", err)
		} else if n > 0 {
			a.Logger.Info("pruned thumbnails", "deleted", n)
		}
	}
	return nil
}

// Close drains in-flight requests, stops the collection owner and closes the
// database.
func (a *App) Close() {
	a.Pool.Close()
	a.cancel()
	<-a.Cache.Stopped()
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("error closing database", "error", err)
	}
}

// rememberingAccount keeps an explicitly supplied assertion in the identity
// token file so later credential rejections can re-authenticate silently.
type rememberingAccount struct {
	*backend.Client
	provider *identity.FileProvider
	logger   *slog.Logger
}

func (r *rememberingAccount) SignIn(ctx context.Context, assertion string) (entities.Session, error) {
	session, err := r.Client.SignIn(ctx, assertion)
	if err != nil {
		return session, err
	}
	if err := r.provider.Store(assertion); err != nil {
		r.logger.Warn("failed to store identity assertion", "error", err)
	}
	return session, nil
}
