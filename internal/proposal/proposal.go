// Package proposal tracks the per-conversation event proposal awaiting
// confirmation. At most one proposal is pending per conversation; starting a
// new one replaces it, confirming or clearing deletes it.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/extract"
)

// ErrNoPendingProposal means the conversation has nothing to confirm or revise.
var ErrNoPendingProposal = errors.New("no pending proposal")

// Extractor is the extraction round a proposal is built from. Satisfied by
// extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (extract.Result, error)
}

// Proposal is a set of extracted events awaiting confirmation.
type Proposal struct {
	Text      string              // the original free-text description
	Edits     []string            // revision instructions, oldest first
	Events    []extract.Candidate // current candidate events
	Trace     string              // raw extraction JSON, one round per line group
	Model     string              // model that produced the current events
	CreatedAt time.Time
}

// Env carries the conversation context an extraction round needs.
type Env struct {
	Directory string
	Now       time.Time
	Timezone  string
}

type Store struct {
	mu        sync.Mutex
	extractor Extractor
	pending   map[int64]*Proposal
}

func NewStore(extractor Extractor) *Store {
	return &Store{
		extractor: extractor,
		pending:   make(map[int64]*Proposal),
	}
}

// Start discards any pending proposal, runs extraction on the text, and
// stores the result as the new pending proposal. A round that extracts no
// events is returned but not stored.
func (s *Store) Start(ctx context.Context, conversationID int64, text string, env Env) (Proposal, error) {
	s.Discard(conversationID)

	result, err := s.extractor.Extract(ctx, extract.Request{
		Instruction: text,
		Directory:   env.Directory,
		Now:         env.Now,
		Timezone:    env.Timezone,
	})
	if err != nil {
		return Proposal{}, err
	}

	p := Proposal{
		Text:      text,
		Events:    result.Events,
		Trace:     result.Raw,
		Model:     result.Model,
		CreatedAt: env.Now,
	}
	if len(p.Events) == 0 {
		return p, nil
	}

	s.mu.Lock()
	s.pending[conversationID] = &p
	s.mu.Unlock()
	return p, nil
}

// Revise re-extracts with the accumulated revision instructions and the raw
// output of earlier rounds as context. A failed round leaves the pending
// proposal untouched.
func (s *Store) Revise(ctx context.Context, conversationID int64, edit string, env Env) (Proposal, error) {
	s.mu.Lock()
	current, ok := s.pending[conversationID]
	if !ok {
		s.mu.Unlock()
		return Proposal{}, ErrNoPendingProposal
	}
	text := current.Text
	edits := append(append([]string(nil), current.Edits...), edit)
	trace := current.Trace
	s.mu.Unlock()

	result, err := s.extractor.Extract(ctx, extract.Request{
		Instruction: CombinedInstruction(text, edits),
		PriorJSON:   trace,
		Directory:   env.Directory,
		Now:         env.Now,
		Timezone:    env.Timezone,
	})
	if err != nil {
		return Proposal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[conversationID]
	if !ok {
		return Proposal{}, ErrNoPendingProposal
	}
	p.Edits = edits
	p.Events = result.Events
	p.Trace = trace + "\n" + result.Raw
	p.Model = result.Model
	return *p, nil
}

// ConfirmAndClear returns the pending proposal and deletes it.
func (s *Store) ConfirmAndClear(conversationID int64) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[conversationID]
	if !ok {
		return Proposal{}, ErrNoPendingProposal
	}
	delete(s.pending, conversationID)
	return *p, nil
}

// Discard drops the pending proposal, reporting whether one existed.
func (s *Store) Discard(conversationID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[conversationID]
	delete(s.pending, conversationID)
	return ok
}

// Pending returns the current proposal without consuming it.
func (s *Store) Pending(conversationID int64) (Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[conversationID]
	if !ok {
		return Proposal{}, false
	}
	return *p, true
}

// CombinedInstruction joins the original description with every revision in
// order, so a single extraction round sees the full editing history.
func CombinedInstruction(text string, edits []string) string {
	if len(edits) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for i, edit := range edits {
		fmt.Fprintf(&b, "\nRevision %d: %s", i+1, edit)
	}
	return b.String()
}
