// Package extract turns free-text event descriptions into structured
// calendar event candidates using the Anthropic API, walking an ordered list
// of models until one produces usable output.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/timeutil"
)

// ErrExtractionFailed means every configured model failed, whether by
// transport error or by malformed output. It wraps the last failure.
var ErrExtractionFailed = errors.New("event extraction failed")

// Backend performs a single completion against one named model.
type Backend interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// Request carries one extraction round's input.
type Request struct {
	Instruction string    // the user's description, with any revisions appended
	PriorJSON   string    // raw output of earlier rounds when revising
	Directory   string    // rendered account/calendar listing
	Now         time.Time // reference moment for relative dates
	Timezone    string    // IANA zone for timestamps without an offset
}

// Candidate is one event proposed by the model, with defaults applied.
type Candidate struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
	Visibility  string
	Attendees   []string
	AccountID   int
	CalendarID  string
}

// Result is a successful extraction round.
type Result struct {
	Events []Candidate
	Model  string // model that produced the result
	Raw    string // raw JSON kept as context for revisions
}

const defaultTimeout = 30 * time.Second

type Extractor struct {
	backend Backend
	models  []string
	timeout time.Duration
}

// New creates an extractor that tries models in the given order.
func New(backend Backend, models []string) *Extractor {
	return &Extractor{
		backend: backend,
		models:  models,
		timeout: defaultTimeout,
	}
}

// Extract runs the model fallback chain. Transport failures and malformed
// output both advance to the next model; only when the whole list is
// exhausted does the round fail.
func (e *Extractor) Extract(ctx context.Context, req Request) (Result, error) {
	userPrompt := buildUserPrompt(req)

	var lastErr error
	for _, model := range e.models {
		text, err := e.complete(ctx, model, userPrompt)
		if err != nil {
			fmt.Printf("Extract: model %s request failed: %v\n", model, err)
			lastErr = err
			continue
		}

		events, raw, err := parseCandidates(text, req.Timezone)
		if err != nil {
			fmt.Printf("Extract: model %s returned malformed output: %v\n", model, err)
			lastErr = err
			continue
		}

		return Result{Events: events, Model: model, Raw: raw}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no extraction models configured")
	}
	return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, lastErr)
}

func (e *Extractor) complete(ctx context.Context, model, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.backend.Complete(ctx, model, SystemPrompt, userPrompt)
}

// wireEvent mirrors the JSON schema the system prompt demands.
type wireEvent struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time,omitempty"`
	Location       string   `json:"location,omitempty"`
	Visibility     string   `json:"visibility,omitempty"`
	AttendeeEmails []string `json:"attendee_emails,omitempty"`
	AccountID      *int     `json:"account_id,omitempty"`
	CalendarID     string   `json:"calendar_id,omitempty"`
}

type wirePayload struct {
	Events []wireEvent `json:"events"`
}

func parseCandidates(text, timezone string) ([]Candidate, string, error) {
	jsonStr := extractJSON(text)
	if strings.TrimSpace(jsonStr) == "" {
		return nil, "", fmt.Errorf("no JSON object in response")
	}

	var payload wirePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, "", fmt.Errorf("failed to parse extraction JSON: %w", err)
	}

	events := make([]Candidate, 0, len(payload.Events))
	for i, ev := range payload.Events {
		candidate, err := mapCandidate(ev, timezone)
		if err != nil {
			return nil, "", fmt.Errorf("event %d: %w", i+1, err)
		}
		events = append(events, candidate)
	}
	return events, jsonStr, nil
}

func mapCandidate(ev wireEvent, timezone string) (Candidate, error) {
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		return Candidate{}, fmt.Errorf("missing title")
	}

	start, _, err := timeutil.ParseDateTime(ev.StartTime, timezone)
	if err != nil {
		return Candidate{}, fmt.Errorf("bad start_time: %w", err)
	}

	end := start.Add(time.Hour)
	if strings.TrimSpace(ev.EndTime) != "" {
		end, _, err = timeutil.ParseDateTime(ev.EndTime, timezone)
		if err != nil {
			return Candidate{}, fmt.Errorf("bad end_time: %w", err)
		}
		if end.Before(start) {
			return Candidate{}, fmt.Errorf("end_time before start_time")
		}
	}

	accountID := 0
	if ev.AccountID != nil && *ev.AccountID > 0 {
		accountID = *ev.AccountID
	}

	calendarID := strings.TrimSpace(ev.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}

	var attendees []string
	for _, email := range ev.AttendeeEmails {
		if trimmed := strings.TrimSpace(email); trimmed != "" {
			attendees = append(attendees, trimmed)
		}
	}

	return Candidate{
		Title:       title,
		Description: strings.TrimSpace(ev.Description),
		Start:       start,
		End:         end,
		Location:    strings.TrimSpace(ev.Location),
		Visibility:  normalizeVisibility(ev.Visibility),
		Attendees:   attendees,
		AccountID:   accountID,
		CalendarID:  calendarID,
	}, nil
}

func normalizeVisibility(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "public":
		return "public"
	case "private":
		return "private"
	case "confidential":
		return "confidential"
	default:
		return "default"
	}
}
