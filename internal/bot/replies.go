package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/directory"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/extract"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/proposal"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/timeutil"
)

const welcomeText = `Hi! Describe an event in plain language and I'll draft it for your calendar.

Commands:
/auth - link a Google account (send again to link another)
/calendars - list your calendars (/calendars enabled hides disabled ones)
/disable <account> <calendar> - stop creating events on a calendar
/enable <account> <calendar> - allow it again
/confirm - create the drafted events
/edit <change> - adjust the draft before confirming
/clear - forget this chat's accounts and settings

Try something like "lunch with Sarah tomorrow at noon".`

// proposalReply renders a drafted proposal with its confirm/edit buttons.
func proposalReply(prop proposal.Proposal) Reply {
	var b strings.Builder

	if len(prop.Events) == 1 {
		b.WriteString("Here's what I'll create:\n\n")
	} else {
		fmt.Fprintf(&b, "Here's what I'll create (%d events):\n\n", len(prop.Events))
	}

	for i, event := range prop.Events {
		writeEventSummary(&b, i+1, event)
	}

	b.WriteString("\nSend /confirm to create, or /edit <change> to adjust.")

	return Reply{
		Text:    b.String(),
		Buttons: proposalButtons(),
	}
}

// confirmPrompt is the /confirm reply: the pending events restated with the
// buttons that actually commit or edit them.
func confirmPrompt(prop proposal.Proposal) Reply {
	var b strings.Builder

	if len(prop.Events) == 1 {
		b.WriteString("Ready to create this event?\n\n")
	} else {
		fmt.Fprintf(&b, "Ready to create these %d events?\n\n", len(prop.Events))
	}

	for i, event := range prop.Events {
		writeEventSummary(&b, i+1, event)
	}

	b.WriteString("\nPress Confirm to create them, or Edit to adjust.")

	return Reply{
		Text:    b.String(),
		Buttons: proposalButtons(),
	}
}

func proposalButtons() []Button {
	return []Button{
		{Label: "Confirm", Data: CallbackConfirm},
		{Label: "Edit", Data: CallbackEdit},
	}
}

func writeEventSummary(b *strings.Builder, position int, event extract.Candidate) {
	fmt.Fprintf(b, "%d. %s\n", position, event.Title)
	fmt.Fprintf(b, "   %s - %s\n", timeutil.FormatEventTime(event.Start), timeutil.FormatEventTime(event.End))
	if event.Description != "" {
		fmt.Fprintf(b, "   %s\n", event.Description)
	}
	if event.Location != "" {
		fmt.Fprintf(b, "   Location: %s\n", event.Location)
	}
	if len(event.Attendees) > 0 {
		fmt.Fprintf(b, "   Attendees: %s\n", strings.Join(event.Attendees, ", "))
	}
	fmt.Fprintf(b, "   Calendar: %s (account %d)\n", event.CalendarID, event.AccountID)
	if event.Visibility != "" && event.Visibility != "default" {
		fmt.Fprintf(b, "   Visibility: %s\n", event.Visibility)
	}
}

// renderOutcomes summarizes a confirmed batch, one line per event.
func renderOutcomes(outcomes []EventOutcome) string {
	if len(outcomes) == 0 {
		return "There were no events to create."
	}

	created := 0
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			created++
		}
	}

	var b strings.Builder
	if len(outcomes) == 1 {
		b.WriteString(outcomeLine(outcomes[0]))
		return b.String()
	}

	fmt.Fprintf(&b, "Created %d of %d events:\n", created, len(outcomes))
	for _, outcome := range outcomes {
		b.WriteString("\n")
		b.WriteString(outcomeLine(outcome))
	}
	return b.String()
}

func outcomeLine(outcome EventOutcome) string {
	title := outcome.Event.Title

	switch {
	case outcome.Err == nil:
		if outcome.Created.HTMLLink != "" {
			return fmt.Sprintf("Created \"%s\": %s", title, outcome.Created.HTMLLink)
		}
		return fmt.Sprintf("Created \"%s\".", title)

	case outcome.Skipped():
		return fmt.Sprintf("Skipped \"%s\": that calendar is disabled. Use /enable to allow it again.", title)

	case errors.Is(outcome.Err, directory.ErrNotAuthenticated), errors.Is(outcome.Err, connect.ErrNotAuthenticated):
		return fmt.Sprintf("Couldn't create \"%s\": no calendar account is connected. Send /auth first.", title)

	case errors.Is(outcome.Err, directory.ErrInvalidIndex):
		return fmt.Sprintf("Couldn't create \"%s\": I couldn't find its calendar.", title)

	case errors.Is(outcome.Err, connect.ErrCreateFailed):
		return fmt.Sprintf("Couldn't create \"%s\": the calendar service didn't accept it.", title)

	default:
		return fmt.Sprintf("Couldn't create \"%s\": %v", title, outcome.Err)
	}
}
