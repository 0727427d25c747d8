package capture

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/arpgate/arpgate/internal/telemetry"
)

const (
	snapLen     = 65536
	readTimeout = 500 * time.Millisecond
)

// Channel owns the single live capture handle for one interface, opened in
// promiscuous mode with a sub-second read timeout so Close unblocks readers
// promptly. It performs no BPF filtering; one capture goroutine serves both
// discovery and blocking.
type Channel struct {
	iface  string
	handle *pcap.Handle

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// OpenChannel opens the live handle on iface.
func OpenChannel(iface string) (*Channel, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("open capture on %s: %w", iface, err)
	}
	return &Channel{
		iface:  iface,
		handle: handle,
		done:   make(chan struct{}),
	}, nil
}

// Start begins asynchronous frame delivery. Each captured frame is handed to
// onFrame exactly once. Capture errors are logged and skipped; the loop exits
// only when the channel is closed.
func (c *Channel) Start(onFrame func(frame []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("capture channel on %s is closed", c.iface)
	}
	if c.started {
		return fmt.Errorf("capture channel on %s already started", c.iface)
	}
	c.started = true

	source := gopacket.NewPacketSource(c.handle, c.handle.LinkType())
	source.NoCopy = true

	go func() {
		for {
			packet, err := source.NextPacket()
			if err != nil {
				select {
				case <-c.done:
					return
				default:
				}
				if err == pcap.NextErrorTimeoutExpired {
					continue
				}
				telemetry.CaptureErrors.WithLabelValues(c.iface).Inc()
				log.Printf("Capture error on %s: %v", c.iface, err)
				continue
			}
			telemetry.PacketsCaptured.WithLabelValues(c.iface).Inc()
			onFrame(packet.Data())
		}
	}()
	return nil
}

// Inject emits one Ethernet frame, synchronously and best-effort.
func (c *Channel) Inject(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("capture channel on %s is closed", c.iface)
	}
	if err := c.handle.WritePacketData(frame); err != nil {
		telemetry.InjectionErrors.WithLabelValues(c.iface).Inc()
		return fmt.Errorf("inject on %s: %w", c.iface, err)
	}
	telemetry.InjectionsTotal.WithLabelValues(c.iface).Inc()
	return nil
}

// Close releases the handle. Idempotent; the capture goroutine unblocks
// within the read timeout.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.handle.Close()
}
