// Package main provides an interactive console for exercising the bot
// conversation loop without Telegram. It uses the real Claude API and the
// configured calendar backend; session state lives in a temp file and tokens
// in an in-memory database unless TGCAL_STATE_FILE / TGCAL_DB_PATH are set.
//
// Usage:
//
//	ANTHROPIC_API_KEY=sk-... ARCADE_API_KEY=arc-... go run cmd/consolebot/main.go
//
// Type messages as you would in the chat. Replies that carry buttons list
// them; typing the bare word (confirm, edit) presses the button.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
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
)

// consoleConversationID stands in for the Telegram chat ID.
const consoleConversationID int64 = 1

func main() {
	fmt.Println("Starting console bot...")
	fmt.Println("This console uses the real Claude API and calendar backend; only Telegram is replaced.")

	cfg := config.LoadFromEnv()

	if cfg.AnthropicAPIKey == "" {
		fmt.Println("Error: ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}

	// Keep console state away from the production bot's files unless the
	// operator pointed at them explicitly.
	statePath := os.Getenv("TGCAL_STATE_FILE")
	if statePath == "" {
		statePath = filepath.Join(os.TempDir(), "tgcal-console-sessions.json")
	}
	sessions := session.NewStore(statePath)
	if err := sessions.Load(); err != nil {
		fmt.Printf("Warning: could not load session state from %s: %v (starting fresh)\n", statePath, err)
	}
	fmt.Printf("Session state: %s\n", statePath)

	client := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.ClaudeTemperature)
	extractor := extract.New(client, cfg.ExtractionModels)

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

	// The OAuth redirect in direct Google mode still needs an HTTP listener.
	srv := server.New(server.Config{
		DB:    db,
		OAuth: exchanger,
		Notify: func(conversationID int64, text string) {
			fmt.Printf("\n%s\n> ", text)
		},
		ProviderName: cfg.CalendarProvider,
		Port:         cfg.HTTPPort,
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	fmt.Printf("\nChatting as conversation %d. Type /start for the command list, quit to exit.\n\n", consoleConversationID)
	runLoop(controller)

	fmt.Println("Shutting down console bot...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Shutdown error: %v\n", err)
	}
}

func initProvider(cfg *config.Config) (connect.Provider, *database.DB, server.OAuthExchanger) {
	switch cfg.CalendarProvider {
	case config.ProviderGoogle:
		dbPath := os.Getenv("TGCAL_DB_PATH")
		if dbPath == "" {
			dbPath = ":memory:"
			fmt.Println("Token database: in-memory (tokens are forgotten on exit)")
		}
		db, err := database.New(dbPath)
		if err != nil {
			fmt.Printf("Failed to create database: %v\n", err)
			os.Exit(1)
		}

		redirectURL := fmt.Sprintf("http://localhost:%d/oauth/callback", cfg.HTTPPort)
		if cfg.BaseURL != "" {
			redirectURL = cfg.BaseURL + "/oauth/callback"
		}

		provider, err := gcal.New(cfg.GoogleCredentialsFile, redirectURL, db)
		if err != nil {
			fmt.Printf("Failed to create Google Calendar provider: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Calendar provider: direct Google")
		return provider, db, provider

	default:
		if cfg.ArcadeAPIKey == "" {
			fmt.Println("Error: ARCADE_API_KEY is required (or set TGCAL_CALENDAR_PROVIDER=google)")
			os.Exit(1)
		}
		fmt.Println("Calendar provider: Arcade engine")
		return arcade.NewClient(cfg.ArcadeAPIKey, cfg.ArcadeBaseURL), nil, nil
	}
}

func runLoop(controller *bot.Controller) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			return
		}

		var reply bot.Reply
		switch line {
		case bot.CallbackConfirm, bot.CallbackEdit:
			reply = controller.HandleCallback(ctx, consoleConversationID, line)
		default:
			reply = controller.HandleMessage(ctx, consoleConversationID, line)
		}
		printReply(reply)

		fmt.Print("> ")
	}
}

func printReply(reply bot.Reply) {
	if reply.Text == "" {
		return
	}

	fmt.Printf("\n%s\n", reply.Text)
	if len(reply.Buttons) > 0 {
		labels := make([]string, len(reply.Buttons))
		for i, b := range reply.Buttons {
			labels[i] = "[" + b.Data + "]"
		}
		fmt.Printf("Buttons: %s (type the word to press one)\n", strings.Join(labels, " "))
	}
	fmt.Println()
}
