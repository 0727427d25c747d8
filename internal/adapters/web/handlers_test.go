package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arpgate/arpgate/internal/core/domain"
	"github.com/arpgate/arpgate/internal/core/ports"
	"github.com/arpgate/arpgate/internal/core/services/blocking"
	"github.com/arpgate/arpgate/internal/core/services/events"
)

// mockService is a canned ports.NetworkService.
type mockService struct {
	devices   []domain.Device
	scanErr   error
	blockErr  error
	blocked   []string
	unblocked []string
}

func (m *mockService) Scan(ctx context.Context) (string, error) {
	if m.scanErr != nil {
		return "", m.scanErr
	}
	return "scan-1", nil
}

func (m *mockService) Devices(ctx context.Context) []domain.Device { return m.devices }

func (m *mockService) Block(ctx context.Context, mac string) error {
	if m.blockErr != nil {
		return m.blockErr
	}
	m.blocked = append(m.blocked, mac)
	return nil
}

func (m *mockService) Unblock(ctx context.Context, mac string) error {
	m.unblocked = append(m.unblocked, mac)
	return nil
}

func (m *mockService) Status(ctx context.Context) ports.EngineStatus {
	return ports.EngineStatus{Interface: "eth0", Subnet: "192.168.1.0/24", DeviceCount: len(m.devices)}
}

func (m *mockService) Report(ctx context.Context) ([]byte, error) {
	return []byte("%PDF-1.4 fake"), nil
}

func newTestServer(service ports.NetworkService, passwordHash string) *Server {
	return NewServer(":0", service, events.NewBroadcaster(10), passwordHash)
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	router := SetupRoutes(s)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus(t *testing.T) {
	rec := doRequest(newTestServer(&mockService{}, ""), http.MethodGet, "/api/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var status ports.EngineStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "eth0", status.Interface)
}

func TestHandleDevices(t *testing.T) {
	mac, _ := net.ParseMAC("bb:bb:bb:bb:bb:bb")
	svc := &mockService{devices: []domain.Device{{
		IP: net.ParseIP("192.168.1.5"), MAC: mac, LastSeen: time.Now(),
	}}}

	rec := doRequest(newTestServer(svc, ""), http.MethodGet, "/api/devices", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []deviceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "bb:bb:bb:bb:bb:bb", views[0].MAC)
	assert.Equal(t, "192.168.1.5", views[0].IP)
}

func TestHandleScan(t *testing.T) {
	rec := doRequest(newTestServer(&mockService{}, ""), http.MethodPost, "/api/scan", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scan-1")
}

func TestHandleScanConflict(t *testing.T) {
	svc := &mockService{scanErr: fmt.Errorf("scan already in progress on eth0")}
	rec := doRequest(newTestServer(svc, ""), http.MethodPost, "/api/scan", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleBlock(t *testing.T) {
	svc := &mockService{}
	rec := doRequest(newTestServer(svc, ""), http.MethodPost, "/api/devices/bb:bb:bb:bb:bb:bb/block", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"bb:bb:bb:bb:bb:bb"}, svc.blocked)
}

func TestHandleBlockInvalidMAC(t *testing.T) {
	rec := doRequest(newTestServer(&mockService{}, ""), http.MethodPost, "/api/devices/not-a-mac/block", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBlockUnknownDevice(t *testing.T) {
	svc := &mockService{blockErr: fmt.Errorf("%w: bb:bb:bb:bb:bb:bb", blocking.ErrUnknownDevice)}
	rec := doRequest(newTestServer(svc, ""), http.MethodPost, "/api/devices/bb:bb:bb:bb:bb:bb/block", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUnblock(t *testing.T) {
	svc := &mockService{}
	rec := doRequest(newTestServer(svc, ""), http.MethodPost, "/api/devices/bb:bb:bb:bb:bb:bb/unblock", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"bb:bb:bb:bb:bb:bb"}, svc.unblocked)
}

func TestHandleReport(t *testing.T) {
	rec := doRequest(newTestServer(&mockService{}, ""), http.MethodGet, "/api/report", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestAuthFlow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	server := newTestServer(&mockService{}, string(hash))
	router := SetupRoutes(server)

	// Unauthenticated requests bounce.
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong password bounces.
	body, _ := json.Marshal(map[string]string{"password": "wrong"})
	req = httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct password yields a token.
	body, _ = json.Marshal(map[string]string{"password": "hunter2"})
	req = httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var loginResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	token := loginResp["token"]
	require.NotEmpty(t, token)

	// Bearer token opens the protected surface.
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthDisabledByDefault(t *testing.T) {
	rec := doRequest(newTestServer(&mockService{}, ""), http.MethodGet, "/api/devices", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
