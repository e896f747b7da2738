// Package server wires the vaultkeeper server together: PostgreSQL storage
// with migrations, the key and session services, the challenge store, and
// the gRPC endpoint. It also handles graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/cryptox"
	"github.com/dmitrijs2005/vaultkeeper/internal/dbx"
	"github.com/dmitrijs2005/vaultkeeper/internal/logging"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/challenges"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/config"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/keys"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/vaultkeeper/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/vaultkeeper/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	redis        *redis.Client
	credentials  *services.CredentialService
	sessions     *services.SessionService
	secondFactor *services.SecondFactorService
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	hasher, err := cryptox.NewHasher(c.HasherParams())
	if err != nil {
		return nil, fmt.Errorf("kdf init error: %w", err)
	}
	if hasher.FellBack() {
		logger.Warn(ctx, "argon2id parameters unusable, falling back", "kdf", hasher.Preferred().String())
	}

	cipher, err := cryptox.NewCipher(c.NonceLength, c.TagLength)
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}

	app.db, err = openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		app.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	store, err := app.challengeStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	tx := dbx.NewSQLTransactor(app.db, nil)
	audit := services.NewAuditor(tx, rm, logger)
	app.sessions = services.NewSessionService(tx, rm, audit, c, logger)
	app.secondFactor = services.NewSecondFactorService(tx, rm, c, logger)

	app.credentials, err = services.NewCredentialService(services.CredentialDeps{
		DB:           tx,
		Repos:        rm,
		Hasher:       hasher,
		Keys:         keys.NewManager(hasher, cipher),
		Sessions:     app.sessions,
		SecondFactor: app.secondFactor,
		Challenges:   store,
		Audit:        audit,
		Log:          logger,
	}, c)
	if err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

// challengeStore uses Redis when an address is configured, so that pending
// second-factor challenges survive across server instances.
func (app *App) challengeStore(ctx context.Context) (challenges.Store, error) {
	if app.config.RedisAddr == "" {
		app.logger.Info(ctx, "Keeping second-factor challenges in memory")
		return challenges.NewMemoryStore(time.Now), nil
	}

	client, err := challenges.Connect(ctx, app.config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.redis = client
	return challenges.NewRedisStore(client, time.Now), nil
}

// Close releases the database and Redis connections.
func (app *App) Close() {
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.credentials, app.sessions, app.secondFactor)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

}
