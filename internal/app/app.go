// Package app initializes and runs the sync daemon: it authenticates the
// user, opens both stores, runs migrations, wires the repositories to the
// coordinator and handles graceful shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/mkorchagin/finsync/internal/blob"
	"github.com/mkorchagin/finsync/internal/config"
	"github.com/mkorchagin/finsync/internal/coordinator"
	"github.com/mkorchagin/finsync/internal/identity"
	"github.com/mkorchagin/finsync/internal/local"
	"github.com/mkorchagin/finsync/internal/logging"
	"github.com/mkorchagin/finsync/internal/models"
	"github.com/mkorchagin/finsync/internal/remote"
	"github.com/mkorchagin/finsync/internal/repository"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type App struct {
	config      *config.Config
	logger      logging.Logger
	localDB     *sql.DB
	remoteDB    *sql.DB
	coordinator *coordinator.Coordinator

	Expenses   *repository.Repository[*models.Expense]
	Incomes    *repository.Repository[*models.Income]
	Budgets    *repository.Repository[*models.Budget]
	Categories *repository.Repository[*models.Category]
	Profiles   *repository.Repository[*models.Profile]
	Receipts   *blob.ReceiptStore
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	owner, err := authenticate([]byte(cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("auth error: %w", err)
	}

	localDB, err := local.Open(ctx, cfg.LocalDSN)
	if err != nil {
		return nil, fmt.Errorf("local db init error: %w", err)
	}

	remoteDB, err := remote.OpenPostgres(ctx, cfg.RemoteDSN)
	if err != nil {
		return nil, fmt.Errorf("remote db init error: %w", err)
	}

	store := remote.NewPostgresStore(remoteDB, owner)
	cursors := local.NewCursorStore(localDB, owner)

	expenses := local.NewStore(localDB, owner, func() *models.Expense { return &models.Expense{} })
	incomes := local.NewStore(localDB, owner, func() *models.Income { return &models.Income{} })
	budgets := local.NewStore(localDB, owner, func() *models.Budget { return &models.Budget{} })
	categories := local.NewStore(localDB, owner, func() *models.Category { return &models.Category{} })
	profiles := local.NewStore(localDB, owner, func() *models.Profile { return &models.Profile{} })

	receipts := blob.NewReceiptStore(cfg.S3Bucket, cfg.S3Region, cfg.S3BaseEndpoint,
		cfg.S3RootUser, cfg.S3RootPassword)

	opts := []coordinator.Option{
		coordinator.WithInterval(cfg.SyncInterval),
		coordinator.WithBackoff(cfg.BackoffMin, cfg.BackoffMax),
		coordinator.WithMaxRetries(uint64(cfg.MaxRetries)),
	}
	if cfg.TombstoneRetention > 0 {
		opts = append(opts,
			coordinator.WithTombstoneRetention(cfg.TombstoneRetention),
			coordinator.WithPurgeHook("expenses", func(ctx context.Context, e syncable.Entity) error {
				return receipts.Delete(ctx, blob.ReceiptKey(owner, e.SyncMeta().ID))
			}),
		)
	}

	coord := coordinator.New(localDB, store, cursors,
		[]coordinator.Collection{
			coordinator.Wrap(expenses),
			coordinator.Wrap(incomes),
			coordinator.Wrap(budgets),
			coordinator.Wrap(categories),
			coordinator.Wrap(profiles),
		}, logger, opts...)

	return &App{
		config:      cfg,
		logger:      logger.With("user", owner),
		localDB:     localDB,
		remoteDB:    remoteDB,
		coordinator: coord,
		Expenses:    repository.New(expenses, coord, owner, cfg.DeviceName),
		Incomes:     repository.New(incomes, coord, owner, cfg.DeviceName),
		Budgets:     repository.New(budgets, coord, owner, cfg.DeviceName),
		Categories:  repository.New(categories, coord, owner, cfg.DeviceName),
		Profiles:    repository.New(profiles, coord, owner, cfg.DeviceName),
		Receipts:    receipts,
	}, nil
}

// authenticate prompts for the auth token and extracts the user id that
// scopes every local row and remote document.
func authenticate(secretKey []byte) (string, error) {
	fmt.Print("Auth token: ")
	token, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return identity.UserIDFromToken(string(token), secretKey)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting sync...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.coordinator.Run(ctx)
	}()

	// first cycle immediately, then on the interval or on repository writes
	app.coordinator.Notify()

	wg.Wait()
	app.coordinator.Close()

	if err := app.localDB.Close(); err != nil {
		app.logger.Error(ctx, "closing local db", "error", err)
	}
	if err := app.remoteDB.Close(); err != nil {
		app.logger.Error(ctx, "closing remote db", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
