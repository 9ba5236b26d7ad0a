package gcal

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
)

// CreateEvent inserts a new event into the linked account's calendar.
func (p *Provider) CreateEvent(ctx context.Context, conversationID int64, slot int, input connect.EventInput) (connect.CreatedEvent, error) {
	service, err := p.service(ctx, conversationID, slot)
	if err != nil {
		return connect.CreatedEvent{}, err
	}

	calendarID := input.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	// RFC3339 format includes timezone offset, so Google Calendar can infer the timezone
	event := &calendar.Event{
		Summary:     input.Title,
		Description: input.Description,
		Location:    input.Location,
		Start: &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
		},
		End: &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
		},
	}

	if input.Visibility != "" && input.Visibility != "default" {
		event.Visibility = input.Visibility
	}

	// Add attendees if provided
	if len(input.Attendees) > 0 {
		attendees := make([]*calendar.EventAttendee, len(input.Attendees))
		for i, email := range input.Attendees {
			attendees[i] = &calendar.EventAttendee{Email: email}
		}
		event.Attendees = attendees
	}

	// SendUpdates sends notifications to attendees
	created, err := service.Events.Insert(calendarID, event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return connect.CreatedEvent{}, fmt.Errorf("%w: %v", connect.ErrCreateFailed, err)
	}
	if created == nil || created.Id == "" {
		return connect.CreatedEvent{}, fmt.Errorf("%w: response contained no event", connect.ErrCreateFailed)
	}

	return connect.CreatedEvent{
		ID:       created.Id,
		HTMLLink: created.HtmlLink,
	}, nil
}
