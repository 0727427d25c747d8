package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arpgate/arpgate/internal/adapters/web/middleware"
	"github.com/arpgate/arpgate/internal/core/ports"
	"github.com/arpgate/arpgate/internal/core/services/events"
)

// Server handles HTTP and WebSocket connections for the operator UI.
type Server struct {
	Addr      string
	Service   ports.NetworkService
	Sessions  *middleware.SessionStore
	WSManager *WSManager
	srv       *http.Server
}

// NewServer creates a new web server over the service facade.
func NewServer(addr string, service ports.NetworkService, broadcaster *events.Broadcaster, passwordHash string) *Server {
	return &Server{
		Addr:      addr,
		Service:   service,
		Sessions:  middleware.NewSessionStore(passwordHash),
		WSManager: NewWSManager(service, broadcaster),
	}
}

// Run starts the server and the websocket broadcaster, blocking until ctx
// is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.WSManager.Start(ctx)

	handler := SetupRoutes(s)
	instrumentedHandler := otelhttp.NewHandler(handler, "arpgate-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Web server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web server shutdown error: %v", err)
		}
	}()

	log.Printf("Web server listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
