package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/directory"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/extract"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/proposal"
	"github.com/ArcadeAI/arcade-telegram-calendar/internal/session"
)

// Callback payloads for the inline buttons attached to proposals.
const (
	CallbackConfirm = "confirm"
	CallbackEdit    = "edit"
)

// Button is an inline action offered with a reply.
type Button struct {
	Label string
	Data  string
}

// Reply is what the controller wants said back into the conversation.
// An empty Text means nothing should be sent.
type Reply struct {
	Text    string
	Buttons []Button
}

// TokenWiper drops stored OAuth tokens when a conversation is cleared.
// Only the direct Google provider keeps local tokens.
type TokenWiper interface {
	DeleteGoogleTokens(conversationID int64) error
}

// Controller routes parsed commands to the session, proposal, and calendar
// layers. Callers must serialize calls per conversation; both entry points
// assume no two updates for the same chat run concurrently.
type Controller struct {
	sessions  *session.Store
	directory *directory.Directory
	proposals *proposal.Store
	creator   *Creator
	provider  connect.Provider
	tokens    TokenWiper
	timezone  string
	now       func() time.Time
}

type Config struct {
	Sessions  *session.Store
	Proposals *proposal.Store
	Provider  connect.Provider
	Tokens    TokenWiper
	Timezone  string
}

func NewController(cfg Config) *Controller {
	dir := directory.New(cfg.Sessions)
	return &Controller{
		sessions:  cfg.Sessions,
		directory: dir,
		proposals: cfg.Proposals,
		creator:   NewCreator(dir, cfg.Provider),
		provider:  cfg.Provider,
		tokens:    cfg.Tokens,
		timezone:  cfg.Timezone,
		now:       time.Now,
	}
}

// HandleMessage processes one inbound text message and returns the reply.
func (c *Controller) HandleMessage(ctx context.Context, conversationID int64, text string) Reply {
	cmd := ParseCommand(text)

	switch cmd.Kind {
	case KindStart:
		return Reply{Text: welcomeText}

	case KindAuth:
		return c.handleAuth(ctx, conversationID)

	case KindDisable:
		return c.handleSetDisabled(conversationID, cmd.AccountID, cmd.CalendarRef, true)

	case KindEnable:
		return c.handleSetDisabled(conversationID, cmd.AccountID, cmd.CalendarRef, false)

	case KindCalendars:
		return c.handleCalendars(conversationID, cmd.EnabledOnly)

	case KindConfirm:
		return c.handleConfirmCommand(conversationID)

	case KindEdit:
		return c.handleEdit(ctx, conversationID, cmd.Text)

	case KindClear:
		return c.handleClear(conversationID)

	case KindUsage:
		return Reply{Text: usageText(cmd.Name)}

	case KindUnknown:
		return Reply{Text: fmt.Sprintf("I don't recognize %s. Send /start to see what I can do.", cmd.Name)}

	case KindFreeText:
		if cmd.Text == "" {
			return Reply{}
		}
		return c.handleFreeText(ctx, conversationID, cmd.Text)

	default:
		return Reply{}
	}
}

// HandleCallback processes an inline button press. The confirm button is the
// only path that actually creates events.
func (c *Controller) HandleCallback(ctx context.Context, conversationID int64, data string) Reply {
	switch data {
	case CallbackConfirm:
		return c.handleConfirmAction(ctx, conversationID)
	case CallbackEdit:
		return Reply{Text: "Send /edit followed by the change, e.g. /edit move it to 3pm."}
	default:
		return Reply{}
	}
}

func (c *Controller) handleAuth(ctx context.Context, conversationID int64) Reply {
	// The slot for the account being linked is the id it will get once
	// linking completes, so re-sending /auth keeps targeting the same slot.
	slot := len(c.sessions.Accounts(conversationID))

	status, err := c.provider.StartAuth(ctx, conversationID, slot)
	if err != nil {
		fmt.Printf("Bot: authorization start failed for conversation %d: %v\n", conversationID, err)
		return Reply{Text: "Failed to start authorization. Please try again in a moment."}
	}

	if !status.Completed {
		return Reply{Text: fmt.Sprintf(
			"Open this link to connect your Google account:\n\n%s\n\nWhen you're done, send /auth again to finish linking.",
			status.RedirectURL,
		)}
	}

	calendars, err := c.provider.ListCalendars(ctx, conversationID, slot)
	if err != nil {
		if errors.Is(err, connect.ErrNotAuthenticated) {
			return Reply{Text: "Authorization isn't finished yet. Open the link from /auth and approve access first."}
		}
		fmt.Printf("Bot: listing calendars failed for conversation %d: %v\n", conversationID, err)
		return Reply{Text: "Connected, but I couldn't load your calendars. Send /auth to retry."}
	}

	account := c.sessions.AddAccount(conversationID, c.provider.Name(), accountEmail(calendars), toCalendarRefs(calendars))
	c.persist(conversationID)

	rendered, err := c.directory.Render(conversationID, false)
	if err != nil {
		rendered = ""
	}
	return Reply{Text: fmt.Sprintf("Connected %s as account %d.\n\n%s", accountLabel(account), account.ID, rendered)}
}

func (c *Controller) handleSetDisabled(conversationID int64, accountID int, calendarRef string, disabled bool) Reply {
	calendarID, changed, err := c.directory.SetDisabled(conversationID, accountID, calendarRef, disabled)
	if err != nil {
		return Reply{Text: directoryErrorText(err, accountID)}
	}

	c.persist(conversationID)

	if disabled {
		return Reply{Text: fmt.Sprintf("Disabled %s. I won't create events there until you /enable it.", calendarID)}
	}
	if !changed {
		return Reply{Text: fmt.Sprintf("%s wasn't disabled.", calendarID)}
	}
	return Reply{Text: fmt.Sprintf("Enabled %s.", calendarID)}
}

func (c *Controller) handleCalendars(conversationID int64, enabledOnly bool) Reply {
	rendered, err := c.directory.Render(conversationID, enabledOnly)
	if err != nil {
		return Reply{Text: directoryErrorText(err, 0)}
	}
	return Reply{Text: rendered}
}

// handleConfirmCommand answers the /confirm text command: it re-presents the
// pending proposal with the confirm/edit buttons but creates nothing.
func (c *Controller) handleConfirmCommand(conversationID int64) Reply {
	prop, ok := c.proposals.Pending(conversationID)
	if !ok {
		return Reply{Text: "There's nothing to confirm right now. Describe an event first."}
	}
	return confirmPrompt(prop)
}

// handleConfirmAction commits the pending proposal: every event is pushed to
// the calendar backend in order, then the proposal is cleared.
func (c *Controller) handleConfirmAction(ctx context.Context, conversationID int64) Reply {
	prop, err := c.proposals.ConfirmAndClear(conversationID)
	if err != nil {
		return Reply{Text: "There's nothing to confirm right now. Describe an event first."}
	}

	outcomes := c.creator.CreateAll(ctx, conversationID, prop.Events)
	return Reply{Text: renderOutcomes(outcomes)}
}

func (c *Controller) handleEdit(ctx context.Context, conversationID int64, text string) Reply {
	prop, err := c.proposals.Revise(ctx, conversationID, text, c.extractEnv(conversationID))
	if err != nil {
		if errors.Is(err, proposal.ErrNoPendingProposal) {
			return Reply{Text: "There's no proposal to edit. Describe the event first."}
		}
		if errors.Is(err, extract.ErrExtractionFailed) {
			return Reply{Text: "I couldn't apply that change. The proposal is unchanged; try rephrasing the edit."}
		}
		fmt.Printf("Bot: revision failed for conversation %d: %v\n", conversationID, err)
		return Reply{Text: "Something went wrong applying that edit. The proposal is unchanged."}
	}

	return proposalReply(prop)
}

func (c *Controller) handleClear(conversationID int64) Reply {
	c.proposals.Discard(conversationID)
	c.sessions.Clear(conversationID)

	if c.tokens != nil {
		if err := c.tokens.DeleteGoogleTokens(conversationID); err != nil {
			fmt.Printf("Warning: could not delete tokens for conversation %d: %v\n", conversationID, err)
		}
	}

	c.persist(conversationID)
	return Reply{Text: "Cleared. Linked accounts, calendar settings, and any pending proposal are gone."}
}

func (c *Controller) handleFreeText(ctx context.Context, conversationID int64, text string) Reply {
	prop, err := c.proposals.Start(ctx, conversationID, text, c.extractEnv(conversationID))
	if err != nil {
		if errors.Is(err, extract.ErrExtractionFailed) {
			return Reply{Text: "Sorry, I couldn't read an event out of that. Could you rephrase it?"}
		}
		fmt.Printf("Bot: extraction failed for conversation %d: %v\n", conversationID, err)
		return Reply{Text: "Something went wrong reading that message. Please try again."}
	}

	if len(prop.Events) == 0 {
		return Reply{Text: "I didn't find anything schedulable in that. Tell me what to put on the calendar, like \"lunch with Sarah tomorrow at noon\"."}
	}

	return proposalReply(prop)
}

// extractEnv snapshots the conversation context the extractor needs. Only
// enabled calendars are offered as extraction targets.
func (c *Controller) extractEnv(conversationID int64) proposal.Env {
	rendered, err := c.directory.Render(conversationID, true)
	if err != nil {
		rendered = ""
	}
	return proposal.Env{
		Directory: rendered,
		Now:       c.now(),
		Timezone:  c.timezone,
	}
}

// persist writes the session snapshot after a mutating command. Failures
// are logged and swallowed so the conversation keeps working in memory.
func (c *Controller) persist(conversationID int64) {
	if err := c.sessions.Persist(); err != nil {
		fmt.Printf("Warning: could not persist sessions for conversation %d: %v\n", conversationID, err)
	}
}

func toCalendarRefs(calendars []connect.Calendar) []session.CalendarRef {
	refs := make([]session.CalendarRef, 0, len(calendars))
	for _, cal := range calendars {
		refs = append(refs, session.CalendarRef{
			ID:          cal.ID,
			Summary:     cal.Summary,
			Description: cal.Description,
			Timezone:    cal.Timezone,
			Primary:     cal.Primary,
		})
	}
	return refs
}

// accountEmail guesses the account's address from its primary calendar,
// whose id is the address on Google accounts.
func accountEmail(calendars []connect.Calendar) string {
	for _, cal := range calendars {
		if cal.Primary && strings.Contains(cal.ID, "@") {
			return cal.ID
		}
	}
	return ""
}

func accountLabel(account session.Account) string {
	if account.Email != "" {
		return account.Email
	}
	return fmt.Sprintf("a %s account", account.Provider)
}

func directoryErrorText(err error, accountID int) string {
	switch {
	case errors.Is(err, directory.ErrNotAuthenticated):
		return "No calendar accounts connected yet. Send /auth to link one."
	case errors.Is(err, directory.ErrUnknownAccount):
		return fmt.Sprintf("I don't know account %d. Send /calendars to see your accounts.", accountID)
	case errors.Is(err, directory.ErrInvalidIndex):
		return "That calendar number is out of range. Send /calendars to see the list."
	default:
		return "Something went wrong. Please try again."
	}
}

func usageText(verb string) string {
	switch verb {
	case "/disable":
		return "Usage: /disable <account> <calendar>, e.g. /disable 0 2. Numbers come from /calendars; a raw calendar id works too."
	case "/enable":
		return "Usage: /enable <account> <calendar>, e.g. /enable 0 2. Numbers come from /calendars; a raw calendar id works too."
	case "/calendars":
		return "Usage: /calendars or /calendars enabled."
	case "/edit":
		return "Usage: /edit <change>, e.g. /edit move it to 3pm."
	default:
		return fmt.Sprintf("I couldn't parse that %s command.", verb)
	}
}
