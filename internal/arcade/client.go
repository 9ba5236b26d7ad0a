// Package arcade talks to an Arcade engine, which brokers Google OAuth and
// executes calendar tools on behalf of per-conversation users.
package arcade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
)

const (
	defaultBaseURL   = "https://api.arcade.dev"
	authorizePath    = "/v1/auth/authorize"
	executePath      = "/v1/tools/execute"
	googleProviderID = "google"

	listCalendarsTool = "GoogleCalendar.ListCalendars"
	createEventTool   = "GoogleCalendar.CreateEvent"
)

var calendarScopes = []string{"https://www.googleapis.com/auth/calendar"}

// Client implements connect.Provider against a hosted Arcade engine.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Name() string {
	return "google"
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// userID is the stable identifier the engine keys credentials by. Each
// account slot of a conversation is its own engine user.
func userID(conversationID int64, slot int) string {
	return fmt.Sprintf("tg:%d:%d", conversationID, slot)
}

type authRequirement struct {
	ProviderID string      `json:"provider_id"`
	OAuth2     oauthScopes `json:"oauth2"`
}

type oauthScopes struct {
	Scopes []string `json:"scopes"`
}

type authorizeRequest struct {
	UserID          string          `json:"user_id"`
	AuthRequirement authRequirement `json:"auth_requirement"`
}

type authorizeResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// StartAuth asks the engine for the slot's authorization state. The engine
// answers either "completed" or a consent URL; invoking it again after the
// user consents reports completion.
func (c *Client) StartAuth(ctx context.Context, conversationID int64, slot int) (connect.AuthStatus, error) {
	req := authorizeRequest{
		UserID: userID(conversationID, slot),
		AuthRequirement: authRequirement{
			ProviderID: googleProviderID,
			OAuth2:     oauthScopes{Scopes: calendarScopes},
		},
	}

	var resp authorizeResponse
	if err := c.post(ctx, authorizePath, req, &resp); err != nil {
		return connect.AuthStatus{}, fmt.Errorf("authorize: %w", err)
	}

	if resp.Status == "completed" {
		return connect.AuthStatus{Completed: true}, nil
	}
	if resp.URL == "" {
		return connect.AuthStatus{}, fmt.Errorf("authorize: engine returned status %q without a consent URL", resp.Status)
	}
	return connect.AuthStatus{RedirectURL: resp.URL}, nil
}

type executeRequest struct {
	ToolName string         `json:"tool_name"`
	UserID   string         `json:"user_id"`
	Input    map[string]any `json:"input,omitempty"`
}

type executeResponse struct {
	Success bool `json:"success"`
	Output  struct {
		Value json.RawMessage `json:"value,omitempty"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"output"`
}

func (c *Client) execute(ctx context.Context, tool, user string, input map[string]any, value any) error {
	req := executeRequest{ToolName: tool, UserID: user, Input: input}

	var resp executeResponse
	if err := c.post(ctx, executePath, req, &resp); err != nil {
		return err
	}
	if resp.Output.Error != nil {
		return fmt.Errorf("tool %s: %s", tool, resp.Output.Error.Message)
	}
	if !resp.Success {
		return fmt.Errorf("tool %s did not succeed", tool)
	}
	if value != nil && len(resp.Output.Value) > 0 {
		if err := json.Unmarshal(resp.Output.Value, value); err != nil {
			return fmt.Errorf("tool %s: failed to parse output: %w", tool, err)
		}
	}
	return nil
}

type wireCalendar struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
}

// ListCalendars lists the calendars the slot's Google account can see.
func (c *Client) ListCalendars(ctx context.Context, conversationID int64, slot int) ([]connect.Calendar, error) {
	var value struct {
		Calendars []wireCalendar `json:"calendars"`
	}
	if err := c.execute(ctx, listCalendarsTool, userID(conversationID, slot), nil, &value); err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}

	calendars := make([]connect.Calendar, 0, len(value.Calendars))
	for _, item := range value.Calendars {
		calendars = append(calendars, connect.Calendar{
			ID:          item.ID,
			Summary:     item.Summary,
			Description: item.Description,
			Timezone:    item.TimeZone,
			Primary:     item.Primary,
		})
	}
	return calendars, nil
}

type wireEvent struct {
	ID       string `json:"id"`
	HTMLLink string `json:"htmlLink,omitempty"`
}

// CreateEvent inserts the event through the engine. A response without a
// created event is reported as connect.ErrCreateFailed.
func (c *Client) CreateEvent(ctx context.Context, conversationID int64, slot int, input connect.EventInput) (connect.CreatedEvent, error) {
	toolInput := map[string]any{
		"calendar_id":    input.CalendarID,
		"summary":        input.Title,
		"start_datetime": input.Start.Format(time.RFC3339),
		"end_datetime":   input.End.Format(time.RFC3339),
	}
	if input.Description != "" {
		toolInput["description"] = input.Description
	}
	if input.Location != "" {
		toolInput["location"] = input.Location
	}
	if input.Visibility != "" && input.Visibility != "default" {
		toolInput["visibility"] = input.Visibility
	}
	if len(input.Attendees) > 0 {
		toolInput["attendee_emails"] = input.Attendees
	}

	var value struct {
		Event *wireEvent `json:"event"`
	}
	if err := c.execute(ctx, createEventTool, userID(conversationID, slot), toolInput, &value); err != nil {
		if errors.Is(err, connect.ErrNotAuthenticated) {
			return connect.CreatedEvent{}, fmt.Errorf("create event: %w", err)
		}
		return connect.CreatedEvent{}, fmt.Errorf("%w: %v", connect.ErrCreateFailed, err)
	}
	if value.Event == nil || value.Event.ID == "" {
		return connect.CreatedEvent{}, fmt.Errorf("%w: engine response contained no event", connect.ErrCreateFailed)
	}
	return connect.CreatedEvent{ID: value.Event.ID, HTMLLink: value.Event.HTMLLink}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: engine rejected credentials (status %d)", connect.ErrNotAuthenticated, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine error (status %d): %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
