// Package server wires HTTP handlers into a ServeMux for the PrivChat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, account endpoints, the WebSocket endpoint, and the
// protocol test page.
func SetupRoutes(g *Gateway) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/register", g.RegisterHandler)
	mux.HandleFunc("/login", g.LoginHandler)
	mux.HandleFunc("/logout", g.LogoutHandler)
	mux.HandleFunc("/ws", g.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
