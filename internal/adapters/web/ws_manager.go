package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arpgate/arpgate/internal/core/ports"
	"github.com/arpgate/arpgate/internal/core/services/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin only; the UI is served by this process.
		return r.Header.Get("Origin") == "" || r.Header.Get("Origin") == "http://"+r.Host
	},
}

// WSMessage is the envelope pushed to UI clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSManager fans engine state and event lines out to websocket clients.
type WSManager struct {
	Service ports.NetworkService
	Events  *events.Broadcaster

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewWSManager creates a manager over the service and event stream.
func NewWSManager(service ports.NetworkService, broadcaster *events.Broadcaster) *WSManager {
	return &WSManager{
		Service: service,
		Events:  broadcaster,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Start launches the periodic snapshot push and the event forwarder.
func (m *WSManager) Start(ctx context.Context) {
	go m.pushSnapshots(ctx)
	go m.forwardEvents(ctx)
}

// HandleWebSocket upgrades one client connection.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = true
	m.mu.Unlock()

	// Replay the retained log so a fresh client sees recent history.
	for _, entry := range m.Events.Recent() {
		m.send(conn, WSMessage{Type: "log", Payload: entry})
	}

	go func() {
		defer conn.Close()
		defer func() {
			m.mu.Lock()
			delete(m.clients, conn)
			m.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (m *WSManager) pushSnapshots(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.broadcast(WSMessage{Type: "devices", Payload: deviceViews(m.Service.Devices(ctx))})
			m.broadcast(WSMessage{Type: "status", Payload: m.Service.Status(ctx)})
		}
	}
}

func (m *WSManager) forwardEvents(ctx context.Context) {
	ch, cancel := m.Events.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			m.broadcast(WSMessage{Type: "log", Payload: entry})
		}
	}
}

func (m *WSManager) broadcast(msg WSMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		if !m.sendLocked(conn, msg) {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}

func (m *WSManager) send(conn *websocket.Conn, msg WSMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendLocked(conn, msg)
}

func (m *WSManager) sendLocked(conn *websocket.Conn, msg WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Println("JSON marshal error:", err)
		return true
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}
