// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"wager-bot/internal/asset"
	"wager-bot/internal/config"
	"wager-bot/internal/handler"
	"wager-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	access *PrivateAccess

	// Handlers
	accountHandler *handler.AccountHandler
	wagerHandler   *handler.WagerHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	WagerService   *service.WagerService
	AllowList      *asset.AllowList
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		access:         &PrivateAccess{},
		accountHandler: handler.NewAccountHandler(deps.AccountService, deps.AllowList),
		wagerHandler:   handler.NewWagerHandler(deps.AccountService, deps.WagerService),
		adminHandler:   handler.NewAdminHandler(deps.AccountService, deps.WagerService),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.access))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/wallet", b.accountHandler.HandleWallet)

	// Game lifecycle
	b.bot.Handle("/create", b.wagerHandler.HandleCreate)
	b.bot.Handle("/judges", b.wagerHandler.HandleJudges)
	b.bot.Handle("/join", b.wagerHandler.HandleJoin)
	b.bot.Handle("/addpot", b.wagerHandler.HandleAddPot)
	b.bot.Handle("/splits", b.wagerHandler.HandleSplits)
	b.bot.Handle("/lock", b.wagerHandler.HandleLock)
	b.bot.Handle("/kick", b.wagerHandler.HandleKick)
	b.bot.Handle("/leave", b.wagerHandler.HandleLeave)
	b.bot.Handle("/report", b.wagerHandler.HandleReport)
	b.bot.Handle("/claim", b.wagerHandler.HandleClaim)
	b.bot.Handle("/game", b.wagerHandler.HandleGame)
	b.bot.Handle(tele.OnCallback, b.wagerHandler.HandleCallback)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/mint", b.adminHandler.HandleMint)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Run polls until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	b.Start()
	return nil
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
