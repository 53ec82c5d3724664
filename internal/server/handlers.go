// Package server exposes the HTTP surface: account registration and login,
// WebSocket upgrades, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterHandler creates an account: credential, identity profile with the
// display name defaulted from the email local part, and a session token.
func (g *Gateway) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	ident, token, err := g.verifier.Register(req.Email, req.Password)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"identity": ident, "token": token})
}

// LoginHandler verifies a password and issues a session token.
func (g *Gateway) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	ident, token, err := g.verifier.Login(req.Email, req.Password)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity": ident, "token": token})
}

// LogoutHandler revokes a session token.
func (g *Gateway) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := g.verifier.Logout(req.Token); err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// WebSocketHandler upgrades the connection and runs the authentication
// handshake. On success the session's pumps take over; on failure the
// connection is closed immediately.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s, err := newSession(g, conn, r.RemoteAddr)
	if err != nil {
		log.Printf("Handshake failed for %s: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}
	s.run()
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "PrivChat server is running!")
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": ErrorPayload{Kind: "validation", Message: "malformed JSON body"},
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, err error) {
	kind := errorKind(err)
	status := http.StatusBadRequest
	switch kind {
	case "unauthorized":
		status = http.StatusUnauthorized
	case "not_found":
		status = http.StatusNotFound
	case "conflict":
		status = http.StatusConflict
	case "internal":
		log.Printf("Internal error on HTTP endpoint: %v", err)
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{
		"error": ErrorPayload{Kind: kind, Message: errorMessage(err)},
	})
}
