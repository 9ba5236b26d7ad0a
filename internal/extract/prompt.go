package extract

import (
	"bytes"
	"fmt"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/timeutil"
)

// SystemPrompt instructs the model to emit structured calendar events.
const SystemPrompt = `You are an assistant that converts short free-text requests into structured calendar events.

The user describes one or more events in plain language. Turn the description into concrete events the user can confirm before anything is created.

## Context Provided
- Connected calendars: the user's accounts and calendars, with account ids and calendar list positions
- Previous extraction: your earlier JSON output, present when the user is revising it
- Current date/time: the reference for resolving relative dates like "tomorrow" or "next Friday"

## Rules

1. Extract every distinct event the request describes. A single request may contain several events.
2. Resolve relative dates ("tomorrow", "next Friday") against the current date/time reference using ordinary weekday arithmetic, never against your own clock.
3. Emit timestamps as ISO 8601. When the request names a timezone or a city's time ("9am NYC time"), encode that zone's offset in the timestamp (2024-06-11T09:00:00-04:00). Otherwise emit local wall time with no offset (2024-06-11T12:00:00); it is interpreted in the user's timezone.
4. If no duration is given, leave end_time empty.
5. Only include attendee_emails that appear verbatim in the request. Never invent addresses.
6. calendar_id must be "primary" or one of the calendar ids listed under Connected Calendars. When the request names one of those calendars, set calendar_id and account_id accordingly; otherwise leave calendar_id as "primary" and account_id as 0.
7. visibility is one of "default", "public", "private", "confidential". Use "default" unless the request says otherwise.
8. When revising a previous extraction, apply the revision instructions to it and return the complete updated list, not a diff.
9. If the request describes nothing schedulable, return an empty events list.

## Response Format

Always respond with valid JSON in this exact format:

{
  "events": [
    {
      "title": "Brief descriptive title",
      "description": "Additional context (optional)",
      "start_time": "2024-06-11T12:00:00",
      "end_time": "2024-06-11T13:00:00 or empty if unspecified",
      "location": "Location if mentioned, otherwise empty",
      "visibility": "default",
      "attendee_emails": [],
      "account_id": 0,
      "calendar_id": "primary"
    }
  ]
}

If nothing is schedulable:

{
  "events": []
}`

// buildUserPrompt assembles the per-round prompt from the request context.
func buildUserPrompt(req Request) string {
	var prompt bytes.Buffer

	prompt.WriteString("## Current Date/Time Reference\n\n")
	prompt.WriteString(fmt.Sprintf("Current time: %s\n", timeutil.FormatReference(req.Now)))
	if req.Timezone != "" {
		prompt.WriteString(fmt.Sprintf("User timezone: %s\n", req.Timezone))
	}

	if req.Directory != "" {
		prompt.WriteString("\n## Connected Calendars\n\n")
		prompt.WriteString(req.Directory)
		prompt.WriteString("\n")
	}

	if req.PriorJSON != "" {
		prompt.WriteString("\n## Previous Extraction\n\n")
		prompt.WriteString(req.PriorJSON)
		prompt.WriteString("\n")
	}

	prompt.WriteString("\n## Request\n\n")
	prompt.WriteString(req.Instruction)
	prompt.WriteString("\n\nRespond with your JSON extraction.")

	return prompt.String()
}
