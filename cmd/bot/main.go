// Package main is the entry point for the wager bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"wager-bot/internal/asset"
	"wager-bot/internal/bot"
	"wager-bot/internal/codegen"
	"wager-bot/internal/config"
	"wager-bot/internal/game"
	"wager-bot/internal/metrics"
	"wager-bot/internal/pkg/db"
	"wager-bot/internal/repository"
	"wager-bot/internal/service"
)

// backend is where users, balances and codes live.
type backend struct {
	pool       *db.Pool
	users      service.UserStore
	wallets    service.Wallets
	transferer asset.Transferer
	codes      codegen.Store
	games      *repository.GameRepository
	observers  []game.Observer
}

func main() {
	// A missing .env is fine; the environment may be set already.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allowList := asset.NewAllowList(cfg.Escrow.NativeSymbol, cfg.Escrow.NativeDecimals)
	for _, t := range cfg.Escrow.AllowedTokens {
		allowList.Allow(asset.Entry{Ref: asset.Token(common.HexToAddress(t.Address)), Symbol: t.Symbol, Decimals: t.Decimals})
	}

	var be backend
	if cfg.Database.Enabled {
		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool.Pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		be, err = databaseBackend(ctx, cfg, pool, allowList)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare storage")
		}
	} else {
		log.Warn().Msg("Database disabled, games and balances live in memory only")
		be = memoryBackend()
	}

	collector := metrics.NewCollector()
	opts := []game.Option{
		game.WithLockTimeout(cfg.Escrow.LockTimeout),
		game.WithObserver(collector),
	}
	for _, o := range be.observers {
		opts = append(opts, game.WithObserver(o))
	}
	registry := game.NewRegistry(
		codegen.New(be.codes, codegen.WithAttempts(cfg.Escrow.CodeAttempts)),
		allowList, be.transferer, opts...,
	)

	if be.games != nil {
		if err := restoreGames(ctx, be.games, registry); err != nil {
			log.Fatal().Err(err).Msg("Failed to restore games")
		}
	}
	collector.Games.Set(float64(len(registry.Codes())))

	faucet, err := service.ParseUnits(cfg.Escrow.Faucet().String(), cfg.Escrow.NativeDecimals)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid faucet amount")
	}

	accountService := service.NewAccountService(be.users, be.wallets, faucet)
	wagerService := service.NewWagerService(registry, allowList, be.wallets)

	telegramBot, err := bot.New(&bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		WagerService:   wagerService,
		AllowList:      allowList,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telegramBot.Run(gctx)
	})
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector.MustRegister(reg)
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if be.pool != nil {
			reg.MustRegister(metrics.PoolCollectors(be.pool.Stats)...)
		}
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Addr, reg)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shut down with error")
		return
	}
	log.Info().Msg("Bot stopped gracefully")
}

func databaseBackend(ctx context.Context, cfg *config.Config, pool *db.Pool, allowList *asset.AllowList) (backend, error) {
	if err := pool.HealthCheck(ctx); err != nil {
		return backend{}, err
	}

	assets := repository.NewAssetRepository(pool.Pool)
	stored, err := assets.List(ctx)
	if err != nil {
		return backend{}, err
	}
	for _, e := range stored {
		allowList.Allow(e)
	}

	wallets := repository.NewWalletRepository(pool.Pool, cfg.Escrow.EscrowAddress())
	games := repository.NewGameRepository(pool.Pool)
	return backend{
		pool:       pool,
		users:      repository.NewUserRepository(pool.Pool),
		wallets:    wallets,
		transferer: wallets,
		codes:      repository.NewCodeRepository(pool.Pool),
		games:      games,
		observers: []game.Observer{
			service.NewJournal(repository.NewJournalRepository(pool.Pool)),
			service.NewPersister(games),
		},
	}, nil
}

func memoryBackend() backend {
	vault := asset.NewVault()
	return backend{
		users:      service.NewMemoryUsers(),
		wallets:    service.VaultWallets{Vault: vault},
		transferer: vault,
		codes:      codegen.NewMemoryStore(),
	}
}

func restoreGames(ctx context.Context, games *repository.GameRepository, registry *game.Registry) error {
	records, err := games.All(ctx)
	if err != nil {
		return err
	}
	open := 0
	for _, rec := range records {
		if err := registry.Restore(ctx, rec); err != nil {
			return err
		}
		if !rec.Confirmed() {
			open++
		}
	}
	log.Info().Int("games", len(records)).Int("unsettled", open).Msg("Games restored")
	return nil
}
