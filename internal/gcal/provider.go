package gcal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/connect"
)

// stateTTL bounds how long an OAuth consent link stays claimable.
const stateTTL = 10 * time.Minute

// TokenStore persists OAuth2 tokens per conversation and account slot.
type TokenStore interface {
	GetGoogleToken(conversationID int64, slot int) (*oauth2.Token, error)
	SaveGoogleToken(conversationID int64, slot int, token *oauth2.Token) error
}

// pendingAuth tracks an issued consent link until its callback arrives.
type pendingAuth struct {
	ConversationID int64
	Slot           int
	CreatedAt      time.Time
}

// Provider talks to Google Calendar directly with locally stored OAuth
// tokens. Each conversation can link several Google accounts; tokens are
// keyed by the account slot the directory assigns.
type Provider struct {
	config *oauth2.Config
	tokens TokenStore

	mu      sync.Mutex
	pending map[string]pendingAuth
}

// New creates a Provider from Google OAuth client credentials.
func New(credentialsFile, redirectURL string, tokens TokenStore) (*Provider, error) {
	config, err := loadOAuthConfig(credentialsFile, redirectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth config: %w", err)
	}

	return &Provider{
		config:  config,
		tokens:  tokens,
		pending: make(map[string]pendingAuth),
	}, nil
}

func (p *Provider) Name() string {
	return "google"
}

// StartAuth returns a consent URL for the slot, or reports the slot as
// already authorized when a usable token is on file.
func (p *Provider) StartAuth(ctx context.Context, conversationID int64, slot int) (connect.AuthStatus, error) {
	token, err := p.tokens.GetGoogleToken(conversationID, slot)
	if err != nil {
		return connect.AuthStatus{}, fmt.Errorf("failed to load token: %w", err)
	}
	if token != nil && (token.Valid() || token.RefreshToken != "") {
		return connect.AuthStatus{Completed: true}, nil
	}

	state := uuid.NewString()

	p.mu.Lock()
	p.prunePendingLocked(time.Now())
	p.pending[state] = pendingAuth{
		ConversationID: conversationID,
		Slot:           slot,
		CreatedAt:      time.Now(),
	}
	p.mu.Unlock()

	url := p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return connect.AuthStatus{RedirectURL: url}, nil
}

// HandleCallback exchanges the authorization code delivered to the OAuth
// redirect endpoint and stores the resulting token. It returns the
// conversation the consent link was issued for.
func (p *Provider) HandleCallback(ctx context.Context, state, code string) (int64, error) {
	p.mu.Lock()
	auth, ok := p.pending[state]
	if ok {
		delete(p.pending, state)
	}
	p.mu.Unlock()

	if !ok || time.Since(auth.CreatedAt) > stateTTL {
		return 0, fmt.Errorf("unknown or expired oauth state")
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if err := p.tokens.SaveGoogleToken(auth.ConversationID, auth.Slot, token); err != nil {
		return 0, fmt.Errorf("failed to save token: %w", err)
	}

	return auth.ConversationID, nil
}

// prunePendingLocked drops consent links older than stateTTL. Caller holds mu.
func (p *Provider) prunePendingLocked(now time.Time) {
	for state, auth := range p.pending {
		if now.Sub(auth.CreatedAt) > stateTTL {
			delete(p.pending, state)
		}
	}
}

// service builds a Calendar service for the slot, refreshing the stored
// token first when it has expired.
func (p *Provider) service(ctx context.Context, conversationID int64, slot int) (*calendar.Service, error) {
	token, err := p.tokens.GetGoogleToken(conversationID, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil {
		return nil, fmt.Errorf("%w: no token stored for account", connect.ErrNotAuthenticated)
	}

	// If the token is expired but we have a refresh token, refresh it now so
	// the renewed token gets persisted instead of living only in this request.
	if !token.Valid() && token.RefreshToken != "" {
		newToken, err := p.config.TokenSource(ctx, token).Token()
		if err != nil {
			return nil, fmt.Errorf("%w: token refresh failed: %v", connect.ErrNotAuthenticated, err)
		}
		if err := p.tokens.SaveGoogleToken(conversationID, slot, newToken); err != nil {
			fmt.Printf("Warning: could not save refreshed token: %v\n", err)
		}
		token = newToken
	}

	httpClient := p.config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return service, nil
}
