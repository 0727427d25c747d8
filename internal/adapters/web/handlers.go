package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/arpgate/arpgate/internal/core/domain"
	"github.com/arpgate/arpgate/internal/core/services/blocking"
)

// deviceView is the wire shape of one device row.
type deviceView struct {
	IP           string    `json:"ip"`
	MAC          string    `json:"mac"`
	Hostname     string    `json:"hostname,omitempty"`
	IsGateway    bool      `json:"is_gateway"`
	IsBlocked    bool      `json:"is_blocked"`
	DiscoveredAt time.Time `json:"discovered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

func deviceViews(devices []domain.Device) []deviceView {
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			IP:           d.IP.String(),
			MAC:          d.MAC.String(),
			Hostname:     d.Hostname,
			IsGateway:    d.IsGateway,
			IsBlocked:    d.IsBlocked,
			DiscoveredAt: d.DiscoveredAt,
			LastSeen:     d.LastSeen,
		})
	}
	return views
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.Sessions.Enabled() {
		writeJSON(w, map[string]string{"status": "auth disabled"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, ok := s.Sessions.Login(req.Password)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("auth_token"); err == nil {
		s.Sessions.Logout(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   "auth_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Service.Status(r.Context()))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, deviceViews(s.Service.Devices(r.Context())))
}

// handleScan runs a full sweep. The sweep of a /24 finishes in a few
// seconds, so it runs within the request; concurrent requests are rejected
// by the scanner.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.Service.Scan(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"scan_id": scanID})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["mac"]
	if !domain.IsValidMAC(mac) {
		http.Error(w, "Invalid MAC", http.StatusBadRequest)
		return
	}
	if err := s.Service.Block(r.Context(), mac); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, blocking.ErrUnknownDevice) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["mac"]
	if !domain.IsValidMAC(mac) {
		http.Error(w, "Invalid MAC", http.StatusBadRequest)
		return
	}
	if err := s.Service.Unblock(r.Context(), mac); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.WSManager.Events.Recent())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	pdf, err := s.Service.Report(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=arpgate-report.pdf")
	if _, err := w.Write(pdf); err != nil {
		log.Printf("Report write failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encode failed: %v", err)
	}
}
