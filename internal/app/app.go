package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/arpgate/arpgate/internal/adapters/capture"
	"github.com/arpgate/arpgate/internal/adapters/reporting"
	"github.com/arpgate/arpgate/internal/config"
	"github.com/arpgate/arpgate/internal/core/domain"
	"github.com/arpgate/arpgate/internal/core/ports"
	"github.com/arpgate/arpgate/internal/core/services/blocking"
	"github.com/arpgate/arpgate/internal/core/services/discovery"
	"github.com/arpgate/arpgate/internal/core/services/events"
	"github.com/arpgate/arpgate/internal/core/services/registry"
	"github.com/arpgate/arpgate/internal/telemetry"
)

// Common errors
var (
	ErrGatewayUnresolved = errors.New("gateway has not been resolved yet")
	ErrInvalidMAC        = errors.New("invalid MAC address")
)

// App owns the engine stack for one interface binding and exposes the
// operation surface the UI drives.
type App struct {
	cfg     *config.Config
	binding domain.InterfaceBinding
	channel ports.Channel

	Table    *registry.DeviceTable
	Scanner  *discovery.Scanner
	Blocker  *blocking.Engine
	Events   *events.Broadcaster
	Exporter *reporting.PDFExporter
}

// New wires the discovery stack over an open capture channel. The blocking
// engine is attached later, once the gateway is resolved.
func New(cfg *config.Config, binding domain.InterfaceBinding, channel ports.Channel, resolver ports.HostnameResolver) *App {
	broadcaster := events.NewBroadcaster(cfg.MaxLogLines)

	table := registry.NewDeviceTable(binding.GatewayIP)
	scanner := discovery.NewScanner(binding, channel, table, resolver)
	scanner.SetOptions(discovery.Options{
		PacketGap:   cfg.SweepPacketGap(),
		GracePeriod: cfg.SweepGracePeriod(),
	})
	scanner.SetLogger(broadcaster.Logger())

	return &App{
		cfg:      cfg,
		binding:  binding,
		channel:  channel,
		Table:    table,
		Scanner:  scanner,
		Events:   broadcaster,
		Exporter: reporting.NewPDFExporter(),
	}
}

// Start begins capture delivery. Every ARP frame on the wire flows through
// the discovery engine; everything else is dropped at decode.
func (a *App) Start() error {
	return a.channel.Start(func(frame []byte) {
		pkt, err := capture.DecodeARP(frame)
		if err != nil {
			return
		}
		a.Scanner.Ingest(pkt)
	})
}

// ResolveGateway probes for the gateway until discovery sees it or the
// context expires, then attaches and starts the blocking engine. Without a
// resolved gateway the blocking engine refuses to exist and the run aborts.
func (a *App) ResolveGateway(ctx context.Context) (domain.Device, error) {
	if gw, ok := a.Table.Gateway(); ok {
		return gw, a.enableBlocking(gw)
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for attempt := 0; ; attempt++ {
		if attempt%5 == 0 {
			if err := a.Scanner.Request(a.binding.GatewayIP); err != nil {
				log.Printf("Gateway probe failed: %v", err)
			}
		}
		select {
		case <-ctx.Done():
			return domain.Device{}, fmt.Errorf("gateway %s did not answer: %w", a.binding.GatewayIP, ctx.Err())
		case <-ticker.C:
			if gw, ok := a.Table.Gateway(); ok {
				return gw, a.enableBlocking(gw)
			}
		}
	}
}

func (a *App) enableBlocking(gateway domain.Device) error {
	if a.Blocker != nil {
		return nil
	}
	engine, err := blocking.NewEngine(a.binding, gateway, a.channel, a.Table, blocking.Options{
		SpoofInterval: a.cfg.SpoofTick(),
		RestoreCount:  a.cfg.Spoof.RestoreCount,
		RestoreGap:    a.cfg.RestoreGap(),
	})
	if err != nil {
		return err
	}
	engine.SetLogger(a.Events.Logger())
	engine.Start()
	a.Blocker = engine
	return nil
}

// Scan runs one full sweep of the subnet and returns its session ID. Only
// one sweep runs at a time; a second call while scanning is rejected.
func (a *App) Scan(ctx context.Context) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "arp.scan",
		telemetry.AttrSubnet.String(a.binding.CIDR()))
	defer span.End()

	scanID, err := a.Scanner.Scan(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(telemetry.AttrScanID.String(scanID))
	return scanID, nil
}

// Devices returns the display-ordered device snapshot.
func (a *App) Devices(ctx context.Context) []domain.Device {
	return a.Table.Snapshot()
}

// Block resolves mac against the table and hands it to the blocking engine.
func (a *App) Block(ctx context.Context, mac string) error {
	_, span := telemetry.StartSpan(ctx, "arp.block",
		telemetry.AttrTargetMAC.String(domain.NormalizeMAC(mac)))
	defer span.End()

	if a.Blocker == nil {
		span.RecordError(ErrGatewayUnresolved)
		return ErrGatewayUnresolved
	}
	device, ok := a.Table.Get(mac)
	if !ok {
		err := fmt.Errorf("%w: %s", blocking.ErrUnknownDevice, mac)
		span.RecordError(err)
		return err
	}
	return a.Blocker.Block(device)
}

// Unblock removes mac from the blocked set, restoring true MACs first.
func (a *App) Unblock(ctx context.Context, mac string) error {
	ctx, span := telemetry.StartSpan(ctx, "arp.unblock",
		telemetry.AttrTargetMAC.String(domain.NormalizeMAC(mac)))
	defer span.End()

	if a.Blocker == nil {
		span.RecordError(ErrGatewayUnresolved)
		return ErrGatewayUnresolved
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrInvalidMAC, mac)
		span.RecordError(err)
		return err
	}
	return a.Blocker.Unblock(ctx, domain.Device{MAC: hw})
}

// Status assembles the aggregate engine state for the UI.
func (a *App) Status(ctx context.Context) ports.EngineStatus {
	status := ports.EngineStatus{
		Interface:    a.binding.Name,
		Subnet:       a.binding.CIDR(),
		GatewayIP:    a.binding.GatewayIP.String(),
		Scanning:     a.Scanner.Scanning(),
		ScanProgress: a.Scanner.Progress(),
		DeviceCount:  a.Table.Count(),
	}
	if a.Blocker != nil {
		status.GatewayMAC = a.Blocker.Gateway().MAC.String()
		status.BlockedCount = a.Blocker.BlockedCount()
	}
	return status
}

// Report renders the current inventory and blocking session as PDF.
func (a *App) Report(ctx context.Context) ([]byte, error) {
	_, span := telemetry.StartSpan(ctx, "report.export",
		telemetry.AttrSubnet.String(a.binding.CIDR()))
	defer span.End()

	report := reporting.SessionReport{
		Interface:   a.binding.Name,
		Subnet:      a.binding.CIDR(),
		GatewayIP:   a.binding.GatewayIP.String(),
		GeneratedAt: time.Now(),
		Devices:     a.Table.Snapshot(),
	}
	if a.Blocker != nil {
		report.Blocked = a.Blocker.Blocked()
	}
	return a.Exporter.Export(report)
}

// Shutdown restores every blocked victim, stops the spoof task and releases
// the capture handle.
func (a *App) Shutdown() {
	if a.Blocker != nil {
		a.Blocker.Stop()
	}
	a.channel.Close()
}
