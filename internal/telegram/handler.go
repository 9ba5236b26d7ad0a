package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/bot"
)

// Dispatcher is the conversation controller behind the transport.
type Dispatcher interface {
	HandleMessage(ctx context.Context, conversationID int64, text string) bot.Reply
	HandleCallback(ctx context.Context, conversationID int64, data string) bot.Reply
}

// Handler routes incoming bot updates to the dispatcher and sends its
// replies back. Direct messages only; groups and channels are ignored.
type Handler struct {
	client     *Client
	dispatcher Dispatcher
}

// NewHandler creates a new Telegram update handler
func NewHandler(client *Client, dispatcher Dispatcher) *Handler {
	return &Handler{
		client:     client,
		dispatcher: dispatcher,
	}
}

// HandleUpdate processes a Telegram update
func (h *Handler) HandleUpdate(ctx context.Context, update tg.UpdatesClass) {
	switch u := update.(type) {
	case *tg.Updates:
		h.cacheEntities(u.Users)
		for _, upd := range u.Updates {
			h.handleSingleUpdate(ctx, upd)
		}
	case *tg.UpdatesCombined:
		h.cacheEntities(u.Users)
		for _, upd := range u.Updates {
			h.handleSingleUpdate(ctx, upd)
		}
	case *tg.UpdateShort:
		h.handleSingleUpdate(ctx, u.Update)
	}
}

// cacheEntities remembers user access hashes for replies
func (h *Handler) cacheEntities(users []tg.UserClass) {
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			h.client.rememberUser(user)
		}
	}
}

// handleSingleUpdate processes a single update
func (h *Handler) handleSingleUpdate(ctx context.Context, update tg.UpdateClass) {
	switch u := update.(type) {
	case *tg.UpdateNewMessage:
		h.handleNewMessage(ctx, u.Message)
	case *tg.UpdateBotCallbackQuery:
		h.handleCallbackQuery(ctx, u)
	}
}

// handleNewMessage processes a new direct message
func (h *Handler) handleNewMessage(ctx context.Context, msg tg.MessageClass) {
	message, ok := msg.(*tg.Message)
	if !ok || message.Out {
		return
	}

	text := message.Message
	if text == "" {
		return
	}

	// Only process direct messages from users, skip groups/channels
	peer, ok := message.PeerID.(*tg.PeerUser)
	if !ok {
		return
	}
	conversationID := peer.UserID

	fmt.Printf("[Telegram DM %d] %s\n", conversationID, truncateText(text, 100))

	reply := h.dispatcher.HandleMessage(ctx, conversationID, text)
	h.send(ctx, conversationID, reply)
}

// handleCallbackQuery processes an inline button press
func (h *Handler) handleCallbackQuery(ctx context.Context, query *tg.UpdateBotCallbackQuery) {
	conversationID := query.UserID
	if peer, ok := query.Peer.(*tg.PeerUser); ok {
		conversationID = peer.UserID
	}

	fmt.Printf("[Telegram button %d] %s\n", conversationID, string(query.Data))

	reply := h.dispatcher.HandleCallback(ctx, conversationID, string(query.Data))

	if err := h.client.AnswerCallback(ctx, query.QueryID); err != nil {
		fmt.Printf("Telegram: Error answering callback: %v\n", err)
	}

	h.send(ctx, conversationID, reply)
}

func (h *Handler) send(ctx context.Context, conversationID int64, reply bot.Reply) {
	if reply.Text == "" {
		return
	}
	if err := h.client.SendMessage(ctx, conversationID, reply.Text, reply.Buttons); err != nil {
		fmt.Printf("Telegram: Error sending reply to %d: %v\n", conversationID, err)
	}
}

// truncateText shortens text for logging
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
