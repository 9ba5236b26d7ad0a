package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ArcadeAI/arcade-telegram-calendar/internal/database"
)

// OAuthExchanger completes a Google OAuth flow from the redirect landing.
// Implemented by the direct Google provider; absent in engine mode.
type OAuthExchanger interface {
	HandleCallback(ctx context.Context, state, code string) (int64, error)
}

// NotifyFunc pushes a message into a conversation once its OAuth flow lands.
type NotifyFunc func(conversationID int64, text string)

type Server struct {
	db           *database.DB
	oauth        OAuthExchanger
	notify       NotifyFunc
	providerName string
	httpSrv      *http.Server
	port         int
}

type Config struct {
	DB           *database.DB
	OAuth        OAuthExchanger
	Notify       NotifyFunc
	ProviderName string
	Port         int
}

func New(cfg Config) *Server {
	s := &Server{
		db:           cfg.DB,
		oauth:        cfg.OAuth,
		notify:       cfg.Notify,
		providerName: cfg.ProviderName,
		port:         cfg.Port,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", s.handleHealthCheck)

	// Google OAuth redirect landing
	mux.HandleFunc("GET /oauth/callback", s.handleOAuthCallback)
}

func (s *Server) Start() error {
	fmt.Printf("Starting HTTP server on http://localhost:%d\n", s.port)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's HTTP handler for testing purposes
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
