package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/anthropic"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/arcade"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/bot"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/config"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/database"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/extract"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/gcal"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/proposal"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/server"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/session"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/telegram"
)

func main() {
	cfg := config.LoadFromEnv()

	// Phase 1: Core infrastructure
	sessions := initSessions(cfg)
	extractor := initExtractor(cfg)
	provider, db, exchanger := initProvider(cfg)
	if db != nil {
		defer db.Close()
	}

	var wiper bot.TokenWiper
	if db != nil {
		wiper = db
	}

	controller := bot.NewController(bot.Config{
		Sessions:  sessions,
		Proposals: proposal.NewStore(extractor),
		Provider:  provider,
		Tokens:    wiper,
		Timezone:  cfg.DefaultTimezone,
	})

	// Phase 2: Transport
	tgClient := initTelegram(cfg, controller)

	srv := server.New(server.Config{
		DB:           db,
		OAuth:        exchanger,
		Notify:       notifier(tgClient),
		ProviderName: cfg.CalendarProvider,
		Port:         cfg.HTTPPort,
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
		}
	}()

	fmt.Println("Bot is running. Press Ctrl+C to stop.")
	waitForShutdown(srv, tgClient)
}

func initSessions(cfg *config.Config) *session.Store {
	store := session.NewStore(cfg.StateFile)
	if err := store.Load(); err != nil {
		fmt.Printf("Warning: could not load session state from %s: %v (starting fresh)\n", cfg.StateFile, err)
	}
	return store
}

func initExtractor(cfg *config.Config) *extract.Extractor {
	if cfg.AnthropicAPIKey == "" {
		fatal("configuration", fmt.Errorf("ANTHROPIC_API_KEY is required"))
	}

	client := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.ClaudeTemperature)
	fmt.Printf("Extraction configured with models: %v\n", cfg.ExtractionModels)
	return extract.New(client, cfg.ExtractionModels)
}

// initProvider picks the calendar backend. The hosted engine needs no local
// state; direct Google mode keeps tokens in SQLite and serves the OAuth
// redirect itself.
func initProvider(cfg *config.Config) (connect.Provider, *database.DB, server.OAuthExchanger) {
	switch cfg.CalendarProvider {
	case config.ProviderGoogle:
		db, err := database.New(cfg.DBPath)
		if err != nil {
			fatal("creating database", err)
		}

		redirectURL := fmt.Sprintf("http://localhost:%d/oauth/callback", cfg.HTTPPort)
		if cfg.BaseURL != "" {
			redirectURL = cfg.BaseURL + "/oauth/callback"
		}

		provider, err := gcal.New(cfg.GoogleCredentialsFile, redirectURL, db)
		if err != nil {
			fatal("creating Google Calendar provider", err)
		}

		fmt.Println("Calendar provider: direct Google")
		return provider, db, provider

	case config.ProviderArcade:
		if cfg.ArcadeAPIKey == "" {
			fatal("configuration", fmt.Errorf("ARCADE_API_KEY is required (or set TGCAL_CALENDAR_PROVIDER=google)"))
		}

		fmt.Println("Calendar provider: Arcade engine")
		return arcade.NewClient(cfg.ArcadeAPIKey, cfg.ArcadeBaseURL), nil, nil

	default:
		fatal("configuration", fmt.Errorf("unknown TGCAL_CALENDAR_PROVIDER %q (want %q or %q)",
			cfg.CalendarProvider, config.ProviderArcade, config.ProviderGoogle))
		return nil, nil, nil
	}
}

func initTelegram(cfg *config.Config, dispatcher telegram.Dispatcher) *telegram.Client {
	tgClient, err := telegram.NewClient(telegram.ClientConfig{
		APIID:       cfg.TelegramAPIID,
		APIHash:     cfg.TelegramAPIHash,
		BotToken:    cfg.TelegramBotToken,
		SessionPath: cfg.SessionFile,
		Dispatcher:  dispatcher,
	})
	if err != nil {
		fatal("creating Telegram client", err)
	}

	if err := tgClient.Connect(); err != nil {
		fatal("connecting to Telegram", err)
	}
	tgClient.StartUpdateLoop()

	return tgClient
}

// notifier pushes OAuth completion notices back into the chat.
func notifier(tgClient *telegram.Client) server.NotifyFunc {
	return func(conversationID int64, text string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tgClient.SendMessage(ctx, conversationID, text, nil); err != nil {
			fmt.Printf("Warning: could not notify conversation %d: %v\n", conversationID, err)
		}
	}
}

func fatal(context string, err error) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", context, err)
	os.Exit(1)
}

func waitForShutdown(srv *server.Server, tgClient *telegram.Client) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tgClient.Disconnect()
	srv.Shutdown(ctx)
}
