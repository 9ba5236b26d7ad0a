package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Health Check

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"provider": s.providerName,
	})
}

// Google OAuth

// handleOAuthCallback receives the consent redirect from Google, exchanges
// the authorization code, and points the user back to the chat.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		respondError(w, http.StatusNotFound, "direct Google OAuth is not enabled")
		return
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("authorization declined: %s", errMsg))
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		respondError(w, http.StatusBadRequest, "missing state or code parameter")
		return
	}

	conversationID, err := s.oauth.HandleCallback(r.Context(), state, code)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to complete authorization: %v", err))
		return
	}

	if s.notify != nil {
		s.notify(conversationID, "Google account connected. Send /auth again to finish linking it.")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h2>Calendar connected</h2><p>You can close this tab and return to Telegram.</p></body></html>")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
