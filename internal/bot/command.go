package bot

import (
	"strconv"
	"strings"
)

// Kind discriminates inbound messages after parsing.
type Kind int

const (
	KindFreeText Kind = iota
	KindStart
	KindAuth
	KindDisable
	KindEnable
	KindCalendars
	KindConfirm
	KindEdit
	KindClear
	KindUsage
	KindUnknown
)

// Command is one parsed inbound message. Messages are parsed exactly once;
// everything downstream switches on Kind instead of re-inspecting text.
type Command struct {
	Kind Kind

	// Text carries the free-form body: the whole message for KindFreeText,
	// the instruction after the verb for KindEdit.
	Text string

	// AccountID and CalendarRef are set for KindDisable and KindEnable.
	AccountID   int
	CalendarRef string

	// EnabledOnly is set for KindCalendars.
	EnabledOnly bool

	// Name is the command verb, set for KindUsage and KindUnknown.
	Name string
}

// ParseCommand classifies a single inbound message. Anything not starting
// with "/" is free text to extract events from.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: KindFreeText, Text: trimmed}
	}

	fields := strings.Fields(trimmed)
	verb := strings.ToLower(fields[0])
	// Commands in group chats arrive as /verb@BotName
	if at := strings.Index(verb, "@"); at > 0 {
		verb = verb[:at]
	}

	switch verb {
	case "/start":
		return Command{Kind: KindStart}

	case "/auth":
		return Command{Kind: KindAuth}

	case "/disable", "/enable":
		kind := KindDisable
		if verb == "/enable" {
			kind = KindEnable
		}
		if len(fields) < 3 {
			return Command{Kind: KindUsage, Name: verb}
		}
		accountID, err := strconv.Atoi(fields[1])
		if err != nil || accountID < 0 {
			return Command{Kind: KindUsage, Name: verb}
		}
		// The calendar reference is kept verbatim past the account field
		return Command{
			Kind:        kind,
			AccountID:   accountID,
			CalendarRef: strings.Join(fields[2:], " "),
		}

	case "/calendars":
		if len(fields) == 1 {
			return Command{Kind: KindCalendars}
		}
		if len(fields) == 2 && strings.EqualFold(fields[1], "enabled") {
			return Command{Kind: KindCalendars, EnabledOnly: true}
		}
		return Command{Kind: KindUsage, Name: verb}

	case "/confirm":
		return Command{Kind: KindConfirm}

	case "/edit":
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
		if rest == "" {
			return Command{Kind: KindUsage, Name: verb}
		}
		return Command{Kind: KindEdit, Text: rest}

	case "/clear":
		return Command{Kind: KindClear}

	default:
		return Command{Kind: KindUnknown, Name: verb}
	}
}
