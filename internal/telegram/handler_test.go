package telegram

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/bot"
)

type recordedMessage struct {
	conversationID int64
	text           string
}

type recordingDispatcher struct {
	messages  []recordedMessage
	callbacks []recordedMessage
}

func (d *recordingDispatcher) HandleMessage(ctx context.Context, conversationID int64, text string) bot.Reply {
	d.messages = append(d.messages, recordedMessage{conversationID, text})
	return bot.Reply{}
}

func (d *recordingDispatcher) HandleCallback(ctx context.Context, conversationID int64, data string) bot.Reply {
	d.callbacks = append(d.callbacks, recordedMessage{conversationID, data})
	return bot.Reply{}
}

func newTestHandler(t *testing.T) (*Handler, *recordingDispatcher) {
	t.Helper()

	dispatcher := &recordingDispatcher{}
	client, err := NewClient(ClientConfig{
		APIID:       17349,
		APIHash:     "test-hash",
		BotToken:    "123:test-token",
		SessionPath: filepath.Join(t.TempDir(), "telegram.session"),
		Dispatcher:  dispatcher,
	})
	require.NoError(t, err)

	return client.handler, dispatcher
}

func TestHandleUpdate(t *testing.T) {
	t.Run("direct message reaches the dispatcher", func(t *testing.T) {
		handler, dispatcher := newTestHandler(t)

		handler.HandleUpdate(context.Background(), &tg.Updates{
			Users: []tg.UserClass{&tg.User{ID: 42, AccessHash: 99}},
			Updates: []tg.UpdateClass{
				&tg.UpdateNewMessage{Message: &tg.Message{
					Message: "lunch tomorrow at noon",
					PeerID:  &tg.PeerUser{UserID: 42},
				}},
			},
		})

		require.Len(t, dispatcher.messages, 1)
		assert.Equal(t, int64(42), dispatcher.messages[0].conversationID)
		assert.Equal(t, "lunch tomorrow at noon", dispatcher.messages[0].text)
	})

	t.Run("messages keep their arrival order", func(t *testing.T) {
		handler, dispatcher := newTestHandler(t)

		handler.HandleUpdate(context.Background(), &tg.Updates{
			Updates: []tg.UpdateClass{
				&tg.UpdateNewMessage{Message: &tg.Message{Message: "first", PeerID: &tg.PeerUser{UserID: 42}}},
				&tg.UpdateNewMessage{Message: &tg.Message{Message: "second", PeerID: &tg.PeerUser{UserID: 42}}},
			},
		})

		require.Len(t, dispatcher.messages, 2)
		assert.Equal(t, "first", dispatcher.messages[0].text)
		assert.Equal(t, "second", dispatcher.messages[1].text)
	})

	t.Run("groups outgoing and empty messages ignored", func(t *testing.T) {
		handler, dispatcher := newTestHandler(t)

		handler.HandleUpdate(context.Background(), &tg.Updates{
			Updates: []tg.UpdateClass{
				&tg.UpdateNewMessage{Message: &tg.Message{Message: "group chatter", PeerID: &tg.PeerChat{ChatID: 7}}},
				&tg.UpdateNewMessage{Message: &tg.Message{Message: "my own reply", Out: true, PeerID: &tg.PeerUser{UserID: 42}}},
				&tg.UpdateNewMessage{Message: &tg.Message{Message: "", PeerID: &tg.PeerUser{UserID: 42}}},
			},
		})

		assert.Empty(t, dispatcher.messages)
	})

	t.Run("button press reaches the dispatcher", func(t *testing.T) {
		handler, dispatcher := newTestHandler(t)

		handler.HandleUpdate(context.Background(), &tg.Updates{
			Updates: []tg.UpdateClass{
				&tg.UpdateBotCallbackQuery{
					QueryID: 7,
					UserID:  42,
					Peer:    &tg.PeerUser{UserID: 42},
					Data:    []byte("confirm"),
				},
			},
		})

		require.Len(t, dispatcher.callbacks, 1)
		assert.Equal(t, int64(42), dispatcher.callbacks[0].conversationID)
		assert.Equal(t, "confirm", dispatcher.callbacks[0].text)
	})
}
