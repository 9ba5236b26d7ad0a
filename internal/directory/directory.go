// Package directory resolves user-facing calendar identifiers against the
// calendars captured when an account was linked, and renders the listing
// shown by /calendars.
package directory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/session"
)

var (
	// ErrNotAuthenticated means the conversation has no linked accounts.
	ErrNotAuthenticated = errors.New("no calendar accounts connected")
	// ErrUnknownAccount means the account id does not name a linked account.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrInvalidIndex means a numeric identifier is outside the calendar list.
	ErrInvalidIndex = errors.New("invalid calendar index")
)

type Directory struct {
	store *session.Store
}

func New(store *session.Store) *Directory {
	return &Directory{store: store}
}

// Account validates an account id for the conversation.
func (d *Directory) Account(conversationID int64, accountID int) (session.Account, error) {
	accounts := d.store.Accounts(conversationID)
	if len(accounts) == 0 {
		return session.Account{}, ErrNotAuthenticated
	}
	for _, acct := range accounts {
		if acct.ID == accountID {
			return acct, nil
		}
	}
	return session.Account{}, fmt.Errorf("%w: %d", ErrUnknownAccount, accountID)
}

// Resolve maps an identifier to a calendar id of the given account. A numeric
// identifier is a 1-based index into the rendered listing; anything else is
// already a calendar id and passes through unchanged. Strict mode fails on
// unknown accounts and out-of-range indexes; used by /disable and /enable.
func (d *Directory) Resolve(conversationID int64, accountID int, identifier string) (string, error) {
	return d.resolve(conversationID, accountID, identifier, true)
}

// ResolveLenient is Resolve for identifiers supplied by extraction rather
// than by the user: every failure falls back to the literal identifier, so
// the calendar service has the final say.
func (d *Directory) ResolveLenient(conversationID int64, accountID int, identifier string) (string, error) {
	return d.resolve(conversationID, accountID, identifier, false)
}

func (d *Directory) resolve(conversationID int64, accountID int, identifier string, strict bool) (string, error) {
	identifier = strings.TrimSpace(identifier)

	acct, err := d.Account(conversationID, accountID)
	if err != nil {
		if strict {
			return "", err
		}
		return identifier, nil
	}

	idx, err := strconv.Atoi(identifier)
	if err != nil {
		// Not an index; treat it as a raw calendar id.
		return identifier, nil
	}
	if idx < 1 || idx > len(acct.Calendars) {
		if strict {
			return "", fmt.Errorf("%w: %d is not in 1..%d", ErrInvalidIndex, idx, len(acct.Calendars))
		}
		return identifier, nil
	}
	return acct.Calendars[idx-1].ID, nil
}

// SetDisabled resolves the identifier strictly and flips the disabled marker,
// reporting whether anything changed.
func (d *Directory) SetDisabled(conversationID int64, accountID int, identifier string, disabled bool) (string, bool, error) {
	calendarID, err := d.Resolve(conversationID, accountID, identifier)
	if err != nil {
		return "", false, err
	}
	changed := d.store.SetDisabled(conversationID, accountID, calendarID, disabled)
	return calendarID, changed, nil
}

// IsDisabled reports whether events may not be created on the calendar.
func (d *Directory) IsDisabled(conversationID int64, accountID int, calendarID string) bool {
	return d.store.IsDisabled(conversationID, accountID, calendarID)
}

// Render lists every account and its calendars with the indexes accepted by
// /disable and /enable. With enabledOnly set, disabled calendars are omitted
// but the remaining indexes keep their positions.
func (d *Directory) Render(conversationID int64, enabledOnly bool) (string, error) {
	accounts := d.store.Accounts(conversationID)
	if len(accounts) == 0 {
		return "", ErrNotAuthenticated
	}

	var b strings.Builder
	for i, acct := range accounts {
		if i > 0 {
			b.WriteString("\n")
		}
		label := acct.Email
		if label == "" {
			label = acct.Provider
		}
		fmt.Fprintf(&b, "Account %d - %s\n", acct.ID, label)
		if len(acct.Calendars) == 0 {
			b.WriteString("  (no calendars)\n")
			continue
		}
		for j, cal := range acct.Calendars {
			disabled := d.store.IsDisabled(conversationID, acct.ID, cal.ID)
			if enabledOnly && disabled {
				continue
			}
			fmt.Fprintf(&b, "  %d. %s", j+1, cal.Summary)
			if cal.Primary {
				b.WriteString(" (primary)")
			}
			if cal.ID != "" && !strings.EqualFold(cal.ID, cal.Summary) {
				fmt.Fprintf(&b, " - %s", cal.ID)
			}
			if disabled {
				b.WriteString(" [disabled]")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
