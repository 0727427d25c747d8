package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arpgate/arpgate/internal/adapters/capture"
	"github.com/arpgate/arpgate/internal/core/domain"
	"github.com/arpgate/arpgate/internal/core/ports"
	"github.com/arpgate/arpgate/internal/telemetry"
)

// Options are the sweep tunables.
type Options struct {
	// PacketGap is the pause between consecutive ARP requests.
	PacketGap time.Duration
	// GracePeriod is how long to wait for late replies after the last request.
	GracePeriod time.Duration
}

// DefaultOptions returns the stock sweep pacing: a /24 completes in under
// two seconds plus one second of grace.
func DefaultOptions() Options {
	return Options{
		PacketGap:   3 * time.Millisecond,
		GracePeriod: 1 * time.Second,
	}
}

// Scanner sweeps the binding's subnet and maintains the device table from
// the capture stream. Ingest stays wired for the whole run, so passive
// sightings and late replies keep landing between sweeps.
type Scanner struct {
	binding  domain.InterfaceBinding
	injector ports.FrameInjector
	table    deviceTable
	resolver ports.HostnameResolver
	opts     Options

	mu       sync.Mutex
	scanning bool
	progress int
	logger   ports.Logger
}

// deviceTable is the slice of the registry the scanner needs. Declared
// locally so tests can substitute a recording fake.
type deviceTable interface {
	Upsert(ip net.IP, mac net.HardwareAddr, seenAt time.Time) (domain.Device, bool)
	SetHostname(mac, hostname string)
	Snapshot() []domain.Device
}

// NewScanner wires a scanner over the injector and table. resolver may be
// nil to skip the reverse-DNS pass.
func NewScanner(binding domain.InterfaceBinding, injector ports.FrameInjector, table deviceTable, resolver ports.HostnameResolver) *Scanner {
	return &Scanner{
		binding:  binding,
		injector: injector,
		table:    table,
		resolver: resolver,
		opts:     DefaultOptions(),
	}
}

// SetOptions overrides the sweep pacing. Call before Scan.
func (s *Scanner) SetOptions(opts Options) {
	if opts.PacketGap <= 0 {
		opts.PacketGap = DefaultOptions().PacketGap
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultOptions().GracePeriod
	}
	s.opts = opts
}

// SetLogger sets the callback for UI event lines.
func (s *Scanner) SetLogger(logger ports.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

func (s *Scanner) log(message, level string) {
	s.mu.Lock()
	logger := s.logger
	s.mu.Unlock()
	if logger != nil {
		logger(message, level)
	}
}

// Scanning reports whether a sweep is in flight.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Progress returns the last emitted sweep percentage.
func (s *Scanner) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Scan enumerates the subnet's host addresses (network, broadcast and our
// own address excluded), emits one ARP request per candidate, waits the
// grace period for stragglers, then resolves hostnames. progressSink, if
// non-nil, receives monotonically non-decreasing percentages in [0,100].
// Returns the sweep's session ID.
func (s *Scanner) Scan(ctx context.Context, progressSink func(int)) (string, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return "", fmt.Errorf("scan already in progress on %s", s.binding.Name)
	}
	s.scanning = true
	s.progress = 0
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	scanID := uuid.New().String()

	hosts := s.binding.Hosts()
	targets := hosts[:0:0]
	for _, h := range hosts {
		if !h.Equal(s.binding.OwnIP) {
			targets = append(targets, h)
		}
	}
	s.log(fmt.Sprintf("Scan %s: sweeping %s (%d hosts)", scanID, s.binding.CIDR(), len(targets)), "info")

	emit := func(pct int) {
		s.mu.Lock()
		if pct < s.progress {
			pct = s.progress
		}
		s.progress = pct
		s.mu.Unlock()
		if progressSink != nil {
			progressSink(pct)
		}
	}

	for i, target := range targets {
		select {
		case <-ctx.Done():
			s.log(fmt.Sprintf("Scan %s cancelled", scanID), "warning")
			return scanID, nil
		default:
		}

		if err := s.Request(target); err != nil {
			s.log(fmt.Sprintf("Scan %s: request for %s failed: %v", scanID, target, err), "warning")
		}
		emit((i + 1) * 100 / len(targets))

		if i < len(targets)-1 {
			select {
			case <-ctx.Done():
				s.log(fmt.Sprintf("Scan %s cancelled", scanID), "warning")
				return scanID, nil
			case <-time.After(s.opts.PacketGap):
			}
		}
	}
	emit(100)

	// Late replies land through Ingest during the grace window and are
	// recorded even though progress already reads 100.
	select {
	case <-ctx.Done():
		return scanID, nil
	case <-time.After(s.opts.GracePeriod):
	}

	s.resolveHostnames(ctx)

	s.log(fmt.Sprintf("Scan %s complete", scanID), "success")
	return scanID, nil
}

// Request emits one targeted who-has probe, used standalone to resolve the
// gateway when a sweep missed it.
func (s *Scanner) Request(ip net.IP) error {
	frame, err := capture.SerializeRequest(s.binding.OwnMAC, s.binding.OwnIP, ip)
	if err != nil {
		return err
	}
	return s.injector.Inject(frame)
}

// Ingest consumes one decoded ARP packet from the capture callback. Replies
// upsert the sender; requests are learned opportunistically the same way, so
// a gratuitous ARP advertises a host into the table. Our own transmissions
// are ignored.
func (s *Scanner) Ingest(pkt domain.ARPPacket) {
	if bytes.Equal(pkt.SenderMAC, s.binding.OwnMAC) {
		return
	}
	if pkt.Operation != domain.ARPRequest && pkt.Operation != domain.ARPReply {
		return
	}
	sender := pkt.SenderIP.To4()
	if sender == nil || sender.Equal(net.IPv4zero.To4()) {
		return
	}

	telemetry.ARPRepliesIngested.WithLabelValues(opLabel(pkt.Operation)).Inc()

	device, isNew := s.table.Upsert(sender, pkt.SenderMAC, time.Now())
	if isNew {
		label := "host"
		if device.IsGateway {
			label = "gateway"
		}
		s.log(fmt.Sprintf("Discovered %s %s at %s", label, device.IP, device.MAC), "success")
	}
}

func (s *Scanner) resolveHostnames(ctx context.Context) {
	if s.resolver == nil {
		return
	}
	for _, d := range s.table.Snapshot() {
		if d.Hostname != "" {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		name, err := s.resolver.Reverse(ctx, d.IP.String())
		if err != nil || name == "" {
			continue
		}
		s.table.SetHostname(d.MAC.String(), name)
		s.log(fmt.Sprintf("Resolved %s as %s", d.IP, name), "info")
	}
}

func opLabel(op uint16) string {
	if op == domain.ARPRequest {
		return "request"
	}
	return "reply"
}
