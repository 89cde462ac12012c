package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tombot/internal/adapters/generator"
	"tombot/internal/adapters/handler"
	"tombot/internal/adapters/metrics"
	"tombot/internal/adapters/rpc"
	"tombot/internal/adapters/scheduler"
	"tombot/internal/adapters/sender"
	"tombot/internal/adapters/store"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/commands"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
	"tombot/internal/core/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := pflag.String("config", ".", "directory containing config.toml")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	dryRun := pflag.BoolP("dry-run", "d", false, "validate the configuration and exit")
	pflag.Parse()

	log.Info().Msg("starting tombot...")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env file")
	}

	setDefaults()
	viper.AddConfigPath(*configDir)
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("TOMBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	log.Info().Msg("reading config file...")
	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Error().Err(err).Msg("could not read config file")
			return 1
		}
		log.Warn().Msg("no config file found, using defaults and environment")
	}

	logLevel, err := zerolog.ParseLevel(viper.GetString("bot.log_level"))
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	if *verbose {
		logLevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	handlerTimeout, err := time.ParseDuration(viper.GetString("bot.handler_timeout"))
	if err != nil {
		log.Error().Err(err).Msg("invalid handler timeout in config")
		return 1
	}

	pollInterval, err := time.ParseDuration(viper.GetString("scheduler.poll_interval"))
	if err != nil {
		log.Error().Err(err).Msg("invalid scheduler poll interval in config")
		return 1
	}

	token := viper.GetString("telegram.bot_token")
	if token == "" {
		log.Error().Msg("telegram.bot_token is not set")
		return 1
	}

	if *dryRun {
		log.Info().
			Str("log_level", logLevel.String()).
			Strs("triggers", viper.GetStringSlice("bot.triggers")).
			Str("announce_group", viper.GetString("bot.announce_group")).
			Dur("handler_timeout", handlerTimeout).
			Str("database", viper.GetString("database.path")).
			Str("rpc", viper.GetString("rpc.listen")).
			Dur("poll_interval", pollInterval).
			Bool("ask", viper.GetString("openrouter.api_key") != "").
			Str("metrics", viper.GetString("metrics.listen")).
			Msg("configuration is valid")
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, viper.GetString("database.path"))
	if err != nil {
		log.Error().Err(err).Msg("failed opening database")
		return 1
	}
	defer db.Close()

	users, err := store.NewUsers(ctx, db)
	if err != nil {
		log.Error().Err(err).Msg("failed initializing user store")
		return 1
	}

	m := metrics.New()

	jobs, err := scheduler.New(ctx, db,
		scheduler.WithPollInterval(pollInterval),
		scheduler.WithObserver(m.ObserveJob))
	if err != nil {
		log.Error().Err(err).Msg("failed initializing scheduler")
		return 1
	}
	sched := m.Scheduler(jobs)

	bus := event.NewBus()
	lifecycle := service.NewBot(bus)

	var inbound *handler.Inbound
	b, err := bot.New(token, bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
		inbound.Handle(ctx, b, update)
	}))
	if err != nil {
		log.Error().Err(err).Msg("failed initializing telegram bot")
		return 1
	}

	transport := sender.NewGated(sender.NewTelegram(b), lifecycle)

	control := rpc.NewServer(transport, lifecycle, rpc.WithRequestHook(m.ObserveControl))
	if err = control.Listen(viper.GetString("rpc.listen")); err != nil {
		log.Error().Err(err).Msg("failed starting control channel")
		return 1
	}
	defer control.Close()

	go func() {
		if err := control.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("control channel stopped")
		}
	}()

	client := rpc.NewClient(control.Addr().String(), rpc.DefaultTimeout)

	auth, err := service.NewAuthorizer(users)
	if err != nil {
		log.Error().Err(err).Msg("failed initializing authorizer")
		return 1
	}

	// A nil interface, not a nil *OpenRouter, keeps the ask plugin from loading.
	var answerer port.Answerer
	if key := viper.GetString("openrouter.api_key"); key != "" {
		openRouter, err := generator.NewOpenRouter(key,
			viper.GetString("openrouter.model"),
			viper.GetString("openrouter.system_prompt"))
		if err != nil {
			log.Error().Err(err).Msg("failed initializing openrouter client")
			return 1
		}
		answerer = openRouter
	}

	group := viper.GetString("bot.announce_group")

	registry := command.NewRegistry()
	registry.OnFault(m.ObserveDisabled)

	loaded := command.LoadPlugins(registry, bus,
		commands.NewSystem(auth),
		commands.NewReminders(service.NewReminder(sched, client), transport),
		commands.NewUsers(users, auth),
		commands.NewMentions(users, transport),
		commands.NewDice(),
		commands.NewDoekoe(sched, client, group),
		commands.NewBirthdays(users, sched, client, group),
		commands.NewAsk(answerer),
	)
	registry.Seal()
	log.Info().Strs("plugins", loaded).Int("commands", len(registry.ListCommands())).Msg("plugins loaded")

	dispatcher := handler.NewDispatcher(registry, transport, lifecycle, bus,
		handler.WithTriggers(viper.GetStringSlice("bot.triggers")),
		handler.WithTimeout(handlerTimeout),
		handler.WithObserver(m.ObserveCommand))
	inbound = handler.NewInbound(dispatcher)
	listener := handler.NewListener(b, inbound)

	lifecycle.StartScheduler(sched)

	if addr := viper.GetString("metrics.listen"); addr != "" {
		go func() {
			if err := m.Serve(ctx, addr); err != nil {
				log.Error().Err(err).Str("address", addr).Msg("metrics listener stopped")
			}
		}()
	}

	code := lifecycle.Run(ctx, listener)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err = sched.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduler did not shut down cleanly")
	}

	return code
}

func setDefaults() {
	viper.SetDefault("bot.log_level", "info")
	viper.SetDefault("bot.triggers", handler.DefaultTriggers)
	viper.SetDefault("bot.admins", []string{})
	viper.SetDefault("bot.handler_timeout", handler.DefaultTimeout.String())
	viper.SetDefault("database.path", "tombot.db")
	viper.SetDefault("rpc.listen", rpc.DefaultAddress)
	viper.SetDefault("scheduler.poll_interval", scheduler.DefaultPollInterval.String())
	viper.SetDefault("openrouter.model", generator.DefaultModel)
	viper.SetDefault("openrouter.system_prompt", generator.DefaultSystemPrompt)
}
