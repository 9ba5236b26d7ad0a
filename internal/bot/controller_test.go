package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/extract"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/proposal"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/session"
)

const testConversation int64 = 42

type fakeProvider struct {
	authStatus  connect.AuthStatus
	authErr     error
	authSlots   []int
	calendars   []connect.Calendar
	listErr     error
	listSlots   []int
	createErr   error
	createCalls []connect.EventInput
}

func (f *fakeProvider) Name() string { return "google" }

func (f *fakeProvider) StartAuth(ctx context.Context, conversationID int64, slot int) (connect.AuthStatus, error) {
	f.authSlots = append(f.authSlots, slot)
	return f.authStatus, f.authErr
}

func (f *fakeProvider) ListCalendars(ctx context.Context, conversationID int64, slot int) ([]connect.Calendar, error) {
	f.listSlots = append(f.listSlots, slot)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.calendars, nil
}

func (f *fakeProvider) CreateEvent(ctx context.Context, conversationID int64, slot int, input connect.EventInput) (connect.CreatedEvent, error) {
	f.createCalls = append(f.createCalls, input)
	if f.createErr != nil {
		return connect.CreatedEvent{}, f.createErr
	}
	return connect.CreatedEvent{ID: fmt.Sprintf("evt-%d", len(f.createCalls)), HTMLLink: "https://calendar.google.com/event"}, nil
}

type fakeExtractor struct {
	results  []extract.Result
	errs     []error
	calls    int
	requests []extract.Request
}

func (f *fakeExtractor) Extract(ctx context.Context, req extract.Request) (extract.Result, error) {
	idx := f.calls
	f.calls++
	f.requests = append(f.requests, req)

	if idx < len(f.errs) && f.errs[idx] != nil {
		return extract.Result{}, f.errs[idx]
	}
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return extract.Result{}, fmt.Errorf("%w: no scripted result", extract.ErrExtractionFailed)
}

type fakeWiper struct {
	cleared []int64
}

func (f *fakeWiper) DeleteGoogleTokens(conversationID int64) error {
	f.cleared = append(f.cleared, conversationID)
	return nil
}

func testCalendars() []connect.Calendar {
	return []connect.Calendar{
		{ID: "me@example.com", Summary: "Personal", Primary: true},
		{ID: "work@group.calendar.google.com", Summary: "Work"},
	}
}

func lunchCandidate() extract.Candidate {
	return extract.Candidate{
		Title:      "Lunch with Sarah",
		Start:      time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 11, 13, 0, 0, 0, time.UTC),
		CalendarID: "primary",
		Visibility: "default",
	}
}

func lunchResult() extract.Result {
	return extract.Result{
		Events: []extract.Candidate{lunchCandidate()},
		Model:  "model-a",
		Raw:    `{"events":[{"title":"Lunch with Sarah"}]}`,
	}
}

type testFixture struct {
	controller *Controller
	provider   *fakeProvider
	extractor  *fakeExtractor
	sessions   *session.Store
	statePath  string
	wiper      *fakeWiper
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	statePath := filepath.Join(t.TempDir(), "sessions.json")
	sessions := session.NewStore(statePath)
	extractor := &fakeExtractor{}
	provider := &fakeProvider{calendars: testCalendars()}
	wiper := &fakeWiper{}

	controller := NewController(Config{
		Sessions:  sessions,
		Proposals: proposal.NewStore(extractor),
		Provider:  provider,
		Tokens:    wiper,
		Timezone:  "UTC",
	})

	return &testFixture{
		controller: controller,
		provider:   provider,
		extractor:  extractor,
		sessions:   sessions,
		statePath:  statePath,
		wiper:      wiper,
	}
}

// linkAccount seeds a connected account without going through /auth.
func (f *testFixture) linkAccount(t *testing.T) session.Account {
	t.Helper()
	refs := []session.CalendarRef{
		{ID: "me@example.com", Summary: "Personal", Primary: true},
		{ID: "work@group.calendar.google.com", Summary: "Work"},
	}
	return f.sessions.AddAccount(testConversation, "google", "me@example.com", refs)
}

// pressConfirm is the inline Confirm button, the only path that creates events.
func (f *testFixture) pressConfirm() Reply {
	return f.controller.HandleCallback(context.Background(), testConversation, CallbackConfirm)
}

func TestHandleStart(t *testing.T) {
	f := newFixture(t)

	reply := f.controller.HandleMessage(context.Background(), testConversation, "/start")
	assert.Contains(t, reply.Text, "/auth")
	assert.Contains(t, reply.Text, "/confirm")
	assert.Empty(t, reply.Buttons)
}

func TestHandleAuth(t *testing.T) {
	t.Run("pending authorization returns the consent link", func(t *testing.T) {
		f := newFixture(t)
		f.provider.authStatus = connect.AuthStatus{RedirectURL: "https://accounts.google.com/consent"}

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/auth")

		assert.Contains(t, reply.Text, "https://accounts.google.com/consent")
		assert.Contains(t, reply.Text, "/auth")
		assert.Empty(t, f.sessions.Accounts(testConversation))
		assert.Equal(t, []int{0}, f.provider.authSlots)
	})

	t.Run("completed authorization links the account", func(t *testing.T) {
		f := newFixture(t)
		f.provider.authStatus = connect.AuthStatus{Completed: true}

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/auth")

		assert.Contains(t, reply.Text, "Connected me@example.com as account 0")
		assert.Contains(t, reply.Text, "1. Personal (primary)")
		assert.Contains(t, reply.Text, "2. Work")

		accounts := f.sessions.Accounts(testConversation)
		require.Len(t, accounts, 1)
		assert.Equal(t, "me@example.com", accounts[0].Email)
		assert.Len(t, accounts[0].Calendars, 2)
	})

	t.Run("second account gets the next slot", func(t *testing.T) {
		f := newFixture(t)
		f.provider.authStatus = connect.AuthStatus{Completed: true}

		f.controller.HandleMessage(context.Background(), testConversation, "/auth")
		f.controller.HandleMessage(context.Background(), testConversation, "/auth")

		assert.Equal(t, []int{0, 1}, f.provider.authSlots)
		assert.Len(t, f.sessions.Accounts(testConversation), 2)
	})

	t.Run("linked accounts survive a restart", func(t *testing.T) {
		f := newFixture(t)
		f.provider.authStatus = connect.AuthStatus{Completed: true}
		f.controller.HandleMessage(context.Background(), testConversation, "/auth")

		reloaded := session.NewStore(f.statePath)
		require.NoError(t, reloaded.Load())
		accounts := reloaded.Accounts(testConversation)
		require.Len(t, accounts, 1)
		assert.Equal(t, "me@example.com", accounts[0].Email)
	})

	t.Run("authorization start failure", func(t *testing.T) {
		f := newFixture(t)
		f.provider.authErr = errors.New("engine unreachable")

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/auth")

		assert.Contains(t, reply.Text, "Failed to start authorization")
		assert.Empty(t, f.sessions.Accounts(testConversation))
	})

	t.Run("unfinished consent reported", func(t *testing.T) {
		f := newFixture(t)
		f.provider.authStatus = connect.AuthStatus{Completed: true}
		f.provider.listErr = fmt.Errorf("%w: no token stored for account", connect.ErrNotAuthenticated)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/auth")

		assert.Contains(t, reply.Text, "isn't finished")
		assert.Empty(t, f.sessions.Accounts(testConversation))
	})
}

func TestHandleDisableEnable(t *testing.T) {
	t.Run("requires a linked account", func(t *testing.T) {
		f := newFixture(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 2")
		assert.Contains(t, reply.Text, "No calendar accounts connected")
	})

	t.Run("disable then enable by index", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 2")
		assert.Contains(t, reply.Text, "Disabled work@group.calendar.google.com")

		listing := f.controller.HandleMessage(context.Background(), testConversation, "/calendars")
		assert.Contains(t, listing.Text, "[disabled]")

		reply = f.controller.HandleMessage(context.Background(), testConversation, "/enable 0 2")
		assert.Contains(t, reply.Text, "Enabled work@group.calendar.google.com")

		listing = f.controller.HandleMessage(context.Background(), testConversation, "/calendars")
		assert.NotContains(t, listing.Text, "[disabled]")
	})

	t.Run("disable and enable accept raw calendar ids", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 work@group.calendar.google.com")
		assert.Contains(t, reply.Text, "Disabled work@group.calendar.google.com")

		reply = f.controller.HandleMessage(context.Background(), testConversation, "/enable 0 work@group.calendar.google.com")
		assert.Contains(t, reply.Text, "Enabled work@group.calendar.google.com")
	})

	t.Run("enabling an enabled calendar says so", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/enable 0 1")
		assert.Contains(t, reply.Text, "me@example.com wasn't disabled")
	})

	t.Run("disabled state survives a restart", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 2")

		reloaded := session.NewStore(f.statePath)
		require.NoError(t, reloaded.Load())
		assert.True(t, reloaded.IsDisabled(testConversation, 0, "work@group.calendar.google.com"))
	})

	t.Run("out of range index", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 9")
		assert.Contains(t, reply.Text, "out of range")
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/disable 5 1")
		assert.Contains(t, reply.Text, "account 5")
	})

	t.Run("malformed arguments get usage text", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/disable 0")
		assert.Contains(t, reply.Text, "Usage: /disable")

		reply = f.controller.HandleMessage(context.Background(), testConversation, "/enable zero 1")
		assert.Contains(t, reply.Text, "Usage: /enable")
	})
}

func TestHandleCalendars(t *testing.T) {
	t.Run("requires a linked account", func(t *testing.T) {
		f := newFixture(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/calendars")
		assert.Contains(t, reply.Text, "Send /auth")
	})

	t.Run("enabled filter hides disabled calendars", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 1")

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/calendars enabled")
		assert.Contains(t, reply.Text, "2. Work")
		assert.NotContains(t, reply.Text, "Personal")
	})
}

func TestProposalFlow(t *testing.T) {
	t.Run("free text drafts a proposal with buttons", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.results = []extract.Result{lunchResult()}

		reply := f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")

		assert.Contains(t, reply.Text, "Lunch with Sarah")
		require.Len(t, reply.Buttons, 2)
		assert.Equal(t, CallbackConfirm, reply.Buttons[0].Data)
		assert.Equal(t, CallbackEdit, reply.Buttons[1].Data)

		// The extractor saw the conversation's calendar directory
		require.Len(t, f.extractor.requests, 1)
		assert.Contains(t, f.extractor.requests[0].Directory, "Personal")
		assert.Equal(t, "lunch with Sarah tomorrow at noon", f.extractor.requests[0].Instruction)
	})

	t.Run("slash confirm re-prompts without creating", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.results = []extract.Result{lunchResult()}

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		reply := f.controller.HandleMessage(context.Background(), testConversation, "/confirm")

		assert.Contains(t, reply.Text, "Ready to create")
		assert.Contains(t, reply.Text, "Lunch with Sarah")
		require.Len(t, reply.Buttons, 2)
		assert.Empty(t, f.provider.createCalls)
	})

	t.Run("confirm button creates the drafted events", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.results = []extract.Result{lunchResult()}

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "Created \"Lunch with Sarah\"")
		require.Len(t, f.provider.createCalls, 1)
		assert.Equal(t, "primary", f.provider.createCalls[0].CalendarID)
		assert.Equal(t, "Lunch with Sarah", f.provider.createCalls[0].Title)
	})

	t.Run("slash confirm without proposal creates nothing", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/confirm")

		assert.Contains(t, reply.Text, "nothing to confirm")
		assert.Empty(t, f.provider.createCalls)
	})

	t.Run("confirm button press without proposal creates nothing", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "nothing to confirm")
		assert.Empty(t, f.provider.createCalls)
	})

	t.Run("proposal is gone after confirming", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.results = []extract.Result{lunchResult()}

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		f.pressConfirm()
		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "nothing to confirm")
		assert.Len(t, f.provider.createCalls, 1)
	})

	t.Run("disabled calendar is skipped without calling the backend", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 2")

		event := lunchCandidate()
		event.Title = "Standup"
		event.CalendarID = "work@group.calendar.google.com"
		f.extractor.results = []extract.Result{{
			Events: []extract.Candidate{event},
			Model:  "model-a",
			Raw:    `{"events":[{"title":"Standup"}]}`,
		}}

		f.controller.HandleMessage(context.Background(), testConversation, "standup on the work calendar tomorrow 9am")
		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "Skipped \"Standup\"")
		assert.Contains(t, reply.Text, "disabled")
		assert.Empty(t, f.provider.createCalls)
	})

	t.Run("batch keeps going past a disabled calendar", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 2")

		blocked := lunchCandidate()
		blocked.Title = "Standup"
		blocked.CalendarID = "work@group.calendar.google.com"
		f.extractor.results = []extract.Result{{
			Events: []extract.Candidate{blocked, lunchCandidate()},
			Model:  "model-a",
			Raw:    `{"events":[]}`,
		}}

		f.controller.HandleMessage(context.Background(), testConversation, "standup and lunch tomorrow")
		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "Created 1 of 2 events")
		assert.Contains(t, reply.Text, "Skipped \"Standup\"")
		assert.Contains(t, reply.Text, "Created \"Lunch with Sarah\"")
		require.Len(t, f.provider.createCalls, 1)
		assert.Equal(t, "primary", f.provider.createCalls[0].CalendarID)
	})

	t.Run("backend rejection is reported per event", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.results = []extract.Result{lunchResult()}
		f.provider.createErr = fmt.Errorf("%w: quota exceeded", connect.ErrCreateFailed)

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "Couldn't create \"Lunch with Sarah\"")
		assert.Contains(t, reply.Text, "didn't accept it")
	})

	t.Run("confirm without any linked account reports per event", func(t *testing.T) {
		f := newFixture(t)
		f.extractor.results = []extract.Result{lunchResult()}

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "Send /auth")
		assert.Empty(t, f.provider.createCalls)
	})

	t.Run("new free text replaces the pending proposal", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		dinner := lunchCandidate()
		dinner.Title = "Dinner with Alex"
		f.extractor.results = []extract.Result{
			lunchResult(),
			{Events: []extract.Candidate{dinner}, Model: "model-a", Raw: `{"events":[]}`},
		}

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		f.controller.HandleMessage(context.Background(), testConversation, "dinner with Alex friday 7pm")
		reply := f.pressConfirm()

		assert.Contains(t, reply.Text, "Dinner with Alex")
		require.Len(t, f.provider.createCalls, 1)
		assert.Equal(t, "Dinner with Alex", f.provider.createCalls[0].Title)
	})

	t.Run("extraction failure apologizes and keeps nothing", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.errs = []error{fmt.Errorf("%w: all models failed", extract.ErrExtractionFailed)}

		reply := f.controller.HandleMessage(context.Background(), testConversation, "lunch tomorrow")
		assert.Contains(t, reply.Text, "couldn't read an event")

		reply = f.controller.HandleMessage(context.Background(), testConversation, "/confirm")
		assert.Contains(t, reply.Text, "nothing to confirm")
	})

	t.Run("nothing schedulable", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.results = []extract.Result{{Events: nil, Model: "model-a", Raw: `{"events":[]}`}}

		reply := f.controller.HandleMessage(context.Background(), testConversation, "how are you?")
		assert.Contains(t, reply.Text, "didn't find anything schedulable")
	})
}

func TestEditFlow(t *testing.T) {
	t.Run("edit without proposal", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		reply := f.controller.HandleMessage(context.Background(), testConversation, "/edit make it 1pm")
		assert.Contains(t, reply.Text, "no proposal to edit")
	})

	t.Run("edits accumulate into the revision instruction", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)

		moved := lunchCandidate()
		moved.Start = moved.Start.Add(time.Hour)
		moved.End = moved.End.Add(time.Hour)
		withBob := moved
		withBob.Attendees = []string{"bob@example.com"}

		f.extractor.results = []extract.Result{
			lunchResult(),
			{Events: []extract.Candidate{moved}, Model: "model-a", Raw: `{"round":2}`},
			{Events: []extract.Candidate{withBob}, Model: "model-a", Raw: `{"round":3}`},
		}

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		f.controller.HandleMessage(context.Background(), testConversation, "/edit make it 1pm")
		reply := f.controller.HandleMessage(context.Background(), testConversation, "/edit add bob@example.com")

		assert.Contains(t, reply.Text, "bob@example.com")

		require.Len(t, f.extractor.requests, 3)
		final := f.extractor.requests[2]
		assert.Contains(t, final.Instruction, "lunch with Sarah tomorrow at noon")
		assert.Contains(t, final.Instruction, "Revision 1: make it 1pm")
		assert.Contains(t, final.Instruction, "Revision 2: add bob@example.com")
	})

	t.Run("failed edit keeps the old proposal confirmable", func(t *testing.T) {
		f := newFixture(t)
		f.linkAccount(t)
		f.extractor.results = []extract.Result{lunchResult()}
		f.extractor.errs = []error{nil, fmt.Errorf("%w: model meltdown", extract.ErrExtractionFailed)}

		f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")
		reply := f.controller.HandleMessage(context.Background(), testConversation, "/edit gibberish")
		assert.Contains(t, reply.Text, "unchanged")

		reply = f.pressConfirm()
		assert.Contains(t, reply.Text, "Created \"Lunch with Sarah\"")
		assert.Len(t, f.provider.createCalls, 1)
	})

	t.Run("edit button explains the command", func(t *testing.T) {
		f := newFixture(t)

		reply := f.controller.HandleCallback(context.Background(), testConversation, CallbackEdit)
		assert.Contains(t, reply.Text, "/edit")
	})
}

func TestHandleClear(t *testing.T) {
	f := newFixture(t)
	f.linkAccount(t)
	f.controller.HandleMessage(context.Background(), testConversation, "/disable 0 2")
	f.extractor.results = []extract.Result{lunchResult()}
	f.controller.HandleMessage(context.Background(), testConversation, "lunch with Sarah tomorrow at noon")

	reply := f.controller.HandleMessage(context.Background(), testConversation, "/clear")
	assert.Contains(t, reply.Text, "Cleared")
	assert.Equal(t, []int64{testConversation}, f.wiper.cleared)

	reply = f.controller.HandleMessage(context.Background(), testConversation, "/calendars")
	assert.Contains(t, reply.Text, "Send /auth")

	reply = f.pressConfirm()
	assert.Contains(t, reply.Text, "nothing to confirm")
	assert.Empty(t, f.provider.createCalls)

	reloaded := session.NewStore(f.statePath)
	require.NoError(t, reloaded.Load())
	assert.Empty(t, reloaded.Accounts(testConversation))
}

func TestUnknownAndEmpty(t *testing.T) {
	f := newFixture(t)

	reply := f.controller.HandleMessage(context.Background(), testConversation, "/frobnicate")
	assert.Contains(t, reply.Text, "/frobnicate")
	assert.Contains(t, reply.Text, "don't recognize")

	reply = f.controller.HandleMessage(context.Background(), testConversation, "   ")
	assert.Empty(t, reply.Text)
	assert.Zero(t, f.extractor.calls)

	reply = f.controller.HandleCallback(context.Background(), testConversation, "bogus")
	assert.Empty(t, reply.Text)
}
