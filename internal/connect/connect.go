// Package connect defines the boundary between the bot and whatever service
// actually holds the user's calendars. Both the hosted Arcade backend and the
// direct Google backend implement Provider.
package connect

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAuthenticated means the account slot has no usable credentials.
	ErrNotAuthenticated = errors.New("calendar account not connected")
	// ErrCreateFailed means the backend accepted the request but reported no
	// created event.
	ErrCreateFailed = errors.New("event creation failed")
	// ErrCalendarDisabled marks the intentional skip of a disabled calendar.
	// No call leaves the process when this is returned.
	ErrCalendarDisabled = errors.New("calendar is disabled")
)

// AuthStatus is the outcome of one StartAuth round.
type AuthStatus struct {
	Completed   bool
	RedirectURL string // consent page the user must visit when not completed
}

// Calendar is one calendar visible to a connected account.
type Calendar struct {
	ID          string
	Summary     string
	Description string
	Timezone    string
	Primary     bool
}

// EventInput is a provider-neutral event creation request.
type EventInput struct {
	CalendarID  string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Visibility  string
	Attendees   []string
}

// CreatedEvent is the provider's record of a successfully created event.
type CreatedEvent struct {
	ID       string
	HTMLLink string
}

// Provider performs OAuth, calendar listing, and event creation for one
// (conversation, account slot) pair. Slots are the session account ids; the
// slot for an account being linked is the id it will receive once linked.
type Provider interface {
	// Name identifies the backend in account records.
	Name() string
	// StartAuth begins or resumes the OAuth flow for the slot. Re-invocation
	// is the retry and completion mechanism; there is no polling.
	StartAuth(ctx context.Context, conversationID int64, slot int) (AuthStatus, error)
	// ListCalendars lists the calendars of an authorized slot.
	ListCalendars(ctx context.Context, conversationID int64, slot int) ([]Calendar, error)
	// CreateEvent inserts the event into one of the slot's calendars.
	CreateEvent(ctx context.Context, conversationID int64, slot int, input EventInput) (CreatedEvent, error)
}
