package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arpgate/arpgate/internal/adapters/web/middleware"
)

// SetupRoutes builds the API router.
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	// Public
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", s.handleLogout).Methods(http.MethodPost)

	// Protected
	auth := middleware.AuthMiddleware(s.Sessions)
	api := r.PathPrefix("/").Subrouter()
	api.Use(auth)

	api.HandleFunc("/ws", s.WSManager.HandleWebSocket)
	api.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/api/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/api/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/api/devices/{mac}/block", s.handleBlock).Methods(http.MethodPost)
	api.HandleFunc("/api/devices/{mac}/unblock", s.handleUnblock).Methods(http.MethodPost)
	api.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/api/report", s.handleReport).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
