package gcal

import (
	"context"
	"fmt"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
)

// ListCalendars returns all calendars the linked account has access to
func (p *Provider) ListCalendars(ctx context.Context, conversationID int64, slot int) ([]connect.Calendar, error) {
	service, err := p.service(ctx, conversationID, slot)
	if err != nil {
		return nil, err
	}

	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var calendars []connect.Calendar
	for _, item := range list.Items {
		calendars = append(calendars, connect.Calendar{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Timezone:    item.TimeZone,
			Primary:     item.Primary,
		})
	}

	return calendars, nil
}
