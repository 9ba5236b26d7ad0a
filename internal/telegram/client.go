package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/bot"
)

// Client manages the Telegram bot connection
type Client struct {
	apiID       int
	apiHash     string
	botToken    string
	sessionPath string
	client      *telegram.Client
	api         *tg.Client
	handler     *Handler
	connected   bool
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	updatesChan chan tg.UpdatesClass
	peers       map[int64]int64 // user id -> access hash
}

// ClientConfig holds configuration for the Telegram client
type ClientConfig struct {
	APIID       int
	APIHash     string
	BotToken    string
	SessionPath string
	Dispatcher  Dispatcher
}

// NewClient creates a new Telegram bot client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("Telegram API ID and API Hash are required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("Telegram bot token is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		apiID:       cfg.APIID,
		apiHash:     cfg.APIHash,
		botToken:    cfg.BotToken,
		sessionPath: cfg.SessionPath,
		ctx:         ctx,
		cancel:      cancel,
		updatesChan: make(chan tg.UpdatesClass, 100),
		peers:       make(map[int64]int64),
	}
	c.handler = NewHandler(c, cfg.Dispatcher)

	return c, nil
}

// Connect initializes the Telegram client and signs the bot in
func (c *Client) Connect() error {
	// Check if already connected (with read lock)
	c.mu.RLock()
	if c.connected || c.api != nil {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	// Acquire write lock to set up the client
	c.mu.Lock()

	// Double-check after acquiring write lock
	if c.connected || c.api != nil {
		c.mu.Unlock()
		return nil
	}

	// Create storage for session persistence
	sessionStorage := &FileSessionStorage{Path: c.sessionPath}

	// Create the Telegram client
	client := telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: sessionStorage,
		UpdateHandler:  c,
	})

	c.client = client
	c.mu.Unlock() // Release lock before starting goroutine

	// Start the client in a goroutine
	go func() {
		if err := client.Run(c.ctx, func(ctx context.Context) error {
			// Check if already authorized from a stored session
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get auth status: %w", err)
			}

			if !status.Authorized {
				if _, err := client.Auth().Bot(ctx, c.botToken); err != nil {
					return fmt.Errorf("bot sign-in failed: %w", err)
				}
				fmt.Println("Telegram: Bot signed in")
			} else {
				fmt.Println("Telegram: Already authorized")
			}

			c.mu.Lock()
			c.api = client.API()
			c.connected = true
			c.mu.Unlock()

			// Block until context is cancelled
			<-ctx.Done()
			return ctx.Err()
		}); err != nil && err != context.Canceled {
			fmt.Printf("Telegram client error: %v\n", err)
		}
	}()

	// Wait for client to initialize with timeout
	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for Telegram client to connect")
		case <-ticker.C:
			c.mu.RLock()
			ready := c.connected
			c.mu.RUnlock()
			if ready {
				fmt.Println("Telegram: Client connected and ready")
				return nil
			}
		}
	}
}

// Disconnect closes the Telegram connection
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.connected = false
}

// IsConnected returns whether the client is connected and signed in
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Handle implements telegram.UpdateHandler
func (c *Client) Handle(ctx context.Context, u tg.UpdatesClass) error {
	// Forward updates to the processing loop
	select {
	case c.updatesChan <- u:
	default:
		fmt.Println("Telegram: Updates channel full, dropping update")
	}

	return nil
}

// StartUpdateLoop starts processing updates. Updates run through a single
// goroutine, so messages within a conversation are handled in order.
func (c *Client) StartUpdateLoop() {
	go func() {
		for {
			select {
			case <-c.ctx.Done():
				return
			case update := <-c.updatesChan:
				c.handler.HandleUpdate(c.ctx, update)
			}
		}
	}()
}

// SendMessage sends a text message to a user, with optional inline buttons.
func (c *Client) SendMessage(ctx context.Context, userID int64, text string, buttons []bot.Button) error {
	c.mu.RLock()
	api := c.api
	c.mu.RUnlock()
	if api == nil {
		return fmt.Errorf("client not connected")
	}

	peer, err := c.inputPeer(userID)
	if err != nil {
		return err
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: randomID(),
	}

	if len(buttons) > 0 {
		row := tg.KeyboardButtonRow{}
		for _, button := range buttons {
			row.Buttons = append(row.Buttons, &tg.KeyboardButtonCallback{
				Text: button.Label,
				Data: []byte(button.Data),
			})
		}
		req.ReplyMarkup = &tg.ReplyInlineMarkup{Rows: []tg.KeyboardButtonRow{row}}
	}

	if _, err := api.MessagesSendMessage(ctx, req); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, queryID int64) error {
	c.mu.RLock()
	api := c.api
	c.mu.RUnlock()
	if api == nil {
		return fmt.Errorf("client not connected")
	}

	_, err := api.MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
	})
	return err
}

// rememberUser caches the access hash needed to message a user later.
func (c *Client) rememberUser(user *tg.User) {
	c.mu.Lock()
	c.peers[user.ID] = user.AccessHash
	c.mu.Unlock()
}

func (c *Client) inputPeer(userID int64) (tg.InputPeerClass, error) {
	c.mu.RLock()
	hash, ok := c.peers[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no access hash cached for user %d", userID)
	}
	return &tg.InputPeerUser{UserID: userID, AccessHash: hash}, nil
}

func randomID() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
