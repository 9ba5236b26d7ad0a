package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/directory"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/extract"
)

// EventOutcome is the per-event result of pushing a confirmed proposal
// into the calendar backend.
type EventOutcome struct {
	Event   extract.Candidate
	Created connect.CreatedEvent
	Err     error
}

// Skipped reports whether the event was intentionally not created because
// its target calendar is disabled.
func (o EventOutcome) Skipped() bool {
	return errors.Is(o.Err, connect.ErrCalendarDisabled)
}

// Creator turns confirmed event candidates into real calendar events.
type Creator struct {
	directory *directory.Directory
	provider  connect.Provider
}

func NewCreator(dir *directory.Directory, provider connect.Provider) *Creator {
	return &Creator{directory: dir, provider: provider}
}

// CreateAll creates every event in the batch, one outcome per event. A
// failure or disabled calendar never aborts the rest of the batch, and a
// disabled calendar is decided locally without calling the backend.
func (c *Creator) CreateAll(ctx context.Context, conversationID int64, events []extract.Candidate) []EventOutcome {
	outcomes := make([]EventOutcome, 0, len(events))
	for _, event := range events {
		outcomes = append(outcomes, c.createOne(ctx, conversationID, event))
	}
	return outcomes
}

func (c *Creator) createOne(ctx context.Context, conversationID int64, event extract.Candidate) EventOutcome {
	outcome := EventOutcome{Event: event}

	accountID := event.AccountID
	if _, err := c.directory.Account(conversationID, accountID); err != nil {
		if errors.Is(err, directory.ErrUnknownAccount) && accountID != 0 {
			// Extraction guessed an account that doesn't exist; fall back
			// to the first one rather than dropping the event.
			accountID = 0
			_, err = c.directory.Account(conversationID, accountID)
		}
		if err != nil {
			outcome.Err = err
			return outcome
		}
	}

	calendarID, err := c.directory.ResolveLenient(conversationID, accountID, event.CalendarID)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	if c.directory.IsDisabled(conversationID, accountID, calendarID) {
		outcome.Err = fmt.Errorf("%w: %s", connect.ErrCalendarDisabled, calendarID)
		return outcome
	}

	created, err := c.provider.CreateEvent(ctx, conversationID, accountID, connect.EventInput{
		CalendarID:  calendarID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       event.Start,
		End:         event.End,
		Visibility:  event.Visibility,
		Attendees:   event.Attendees,
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Created = created
	return outcome
}
