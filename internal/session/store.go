package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CalendarRef is one calendar of a connected account, captured when the
// account is linked.
type CalendarRef struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
}

// Account is a connected calendar account within one conversation. IDs are
// small integers assigned in connection order, starting at zero.
type Account struct {
	ID        int           `json:"id"`
	Provider  string        `json:"provider"`
	Email     string        `json:"email,omitempty"`
	Calendars []CalendarRef `json:"calendars"`
}

// State is everything remembered about one conversation across restarts.
// Disabled maps account id to the calendar ids excluded from event creation.
type State struct {
	Accounts []Account        `json:"accounts"`
	Disabled map[int][]string `json:"disabledCalendars,omitempty"`
}

// Store keeps per-conversation account state in memory and snapshots it to a
// single JSON file. All methods are safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	path          string
	conversations map[int64]*State
}

func NewStore(path string) *Store {
	return &Store{
		path:          path,
		conversations: make(map[int64]*State),
	}
}

// Load reads the snapshot file if it exists. A missing file means a fresh
// store and is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session snapshot %s: %w", s.path, err)
	}

	conversations := make(map[int64]*State)
	if err := json.Unmarshal(data, &conversations); err != nil {
		return fmt.Errorf("decode session snapshot %s: %w", s.path, err)
	}
	s.conversations = conversations
	return nil
}

// Persist rewrites the entire snapshot file. Callers treat failures as
// non-fatal and log them.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.conversations, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace session snapshot %s: %w", s.path, err)
	}
	return nil
}

// Accounts returns a copy of the conversation's accounts in connection order.
func (s *Store) Accounts(conversationID int64) []Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	out := make([]Account, len(st.Accounts))
	copy(out, st.Accounts)
	return out
}

// Account looks up one account by its per-conversation ID.
func (s *Store) Account(conversationID int64, accountID int) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.conversations[conversationID]
	if !ok {
		return Account{}, false
	}
	for _, acct := range st.Accounts {
		if acct.ID == accountID {
			return acct, true
		}
	}
	return Account{}, false
}

// AddAccount registers a newly linked account and returns it with its
// assigned ID.
func (s *Store) AddAccount(conversationID int64, provider, email string, calendars []CalendarRef) Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(conversationID)
	acct := Account{
		ID:        len(st.Accounts),
		Provider:  provider,
		Email:     email,
		Calendars: calendars,
	}
	st.Accounts = append(st.Accounts, acct)
	return acct
}

// SetDisabled marks or unmarks one calendar of one account as disabled,
// reporting whether the marker actually changed. Idempotent.
func (s *Store) SetDisabled(conversationID int64, accountID int, calendarID string, disabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(conversationID)
	ids := st.Disabled[accountID]
	at := -1
	for i, id := range ids {
		if id == calendarID {
			at = i
			break
		}
	}

	if disabled {
		if at >= 0 {
			return false
		}
		if st.Disabled == nil {
			st.Disabled = make(map[int][]string)
		}
		st.Disabled[accountID] = append(ids, calendarID)
		return true
	}

	if at < 0 {
		return false
	}
	ids = append(ids[:at], ids[at+1:]...)
	if len(ids) == 0 {
		delete(st.Disabled, accountID)
	} else {
		st.Disabled[accountID] = ids
	}
	return true
}

// IsDisabled reports whether the calendar is currently excluded from event
// creation. Unknown pairs are enabled.
func (s *Store) IsDisabled(conversationID int64, accountID int, calendarID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	for _, id := range st.Disabled[accountID] {
		if id == calendarID {
			return true
		}
	}
	return false
}

// Clear forgets all accounts and disabled markers for the conversation.
func (s *Store) Clear(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}

func (s *Store) stateLocked(conversationID int64) *State {
	st, ok := s.conversations[conversationID]
	if !ok {
		st = &State{}
		s.conversations[conversationID] = st
	}
	return st
}
