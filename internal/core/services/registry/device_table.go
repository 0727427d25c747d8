package registry

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/arpgate/arpgate/internal/core/domain"
	"github.com/arpgate/arpgate/internal/telemetry"
)

// DeviceTable is the concurrent device map keyed by MAC. Devices are created
// on first sighting and never removed mid-run; rescans refresh last_seen.
// A single mutex is enough here: writes arrive at sweep pace, reads at UI pace.
type DeviceTable struct {
	mu        sync.RWMutex
	devices   map[string]domain.Device
	gatewayIP net.IP
}

// NewDeviceTable creates an empty table. gatewayIP decides which upserts are
// flagged as the gateway.
func NewDeviceTable(gatewayIP net.IP) *DeviceTable {
	return &DeviceTable{
		devices:   make(map[string]domain.Device),
		gatewayIP: gatewayIP.To4(),
	}
}

// Upsert records a sighting of (ip, mac). New hardware is inserted; known
// hardware has its last_seen refreshed and its IP rewritten if the address
// changed since the last scan. Returns the stored device and whether it was
// newly inserted.
func (t *DeviceTable) Upsert(ip net.IP, mac net.HardwareAddr, seenAt time.Time) (domain.Device, bool) {
	key := domain.NormalizeMAC(mac.String())
	isGateway := ip.Equal(t.gatewayIP)

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.devices[key]
	if !ok {
		d := domain.Device{
			IP:           append(net.IP(nil), ip.To4()...),
			MAC:          append(net.HardwareAddr(nil), mac...),
			IsGateway:    isGateway,
			DiscoveredAt: seenAt,
			LastSeen:     seenAt,
		}
		if isGateway {
			t.clearGatewayFlagLocked(key)
		}
		t.devices[key] = d
		telemetry.DevicesDiscovered.Inc()
		return d, true
	}

	if !existing.IP.Equal(ip) {
		existing.IP = append(net.IP(nil), ip.To4()...)
	}
	existing.IsGateway = isGateway
	if isGateway {
		t.clearGatewayFlagLocked(key)
	}
	existing.LastSeen = seenAt
	t.devices[key] = existing
	return existing, false
}

// clearGatewayFlagLocked drops is_gateway from every entry except keep, so
// the table never holds two gateways after an address move.
func (t *DeviceTable) clearGatewayFlagLocked(keep string) {
	for k, d := range t.devices {
		if k != keep && d.IsGateway {
			d.IsGateway = false
			t.devices[k] = d
		}
	}
}

// Get looks up a device by MAC.
func (t *DeviceTable) Get(mac string) (domain.Device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.devices[domain.NormalizeMAC(mac)]
	return d, ok
}

// Gateway returns the gateway entry, if discovery has resolved it.
func (t *DeviceTable) Gateway() (domain.Device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, d := range t.devices {
		if d.IsGateway {
			return d, true
		}
	}
	return domain.Device{}, false
}

// SetBlocked flips the blocked flag on a device. Returns false when the MAC
// is unknown.
func (t *DeviceTable) SetBlocked(mac string, blocked bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := domain.NormalizeMAC(mac)
	d, ok := t.devices[key]
	if !ok {
		return false
	}
	d.IsBlocked = blocked
	t.devices[key] = d
	return true
}

// SetHostname records a resolved name. Unknown MACs are ignored.
func (t *DeviceTable) SetHostname(mac, hostname string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := domain.NormalizeMAC(mac)
	if d, ok := t.devices[key]; ok {
		d.Hostname = hostname
		t.devices[key] = d
	}
}

// Snapshot returns a copy of all devices ordered by the last octet of their
// IP, the display order.
func (t *DeviceTable) Snapshot() []domain.Device {
	t.mu.RLock()
	all := make([]domain.Device, 0, len(t.devices))
	for _, d := range t.devices {
		dCopy := d
		dCopy.IP = append(net.IP(nil), d.IP...)
		dCopy.MAC = append(net.HardwareAddr(nil), d.MAC...)
		all = append(all, dCopy)
	}
	t.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].IP[len(all[i].IP)-1] < all[j].IP[len(all[j].IP)-1]
	})
	return all
}

// Count returns the number of known devices.
func (t *DeviceTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}
