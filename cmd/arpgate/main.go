package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/arpgate/arpgate/internal/adapters/capture"
	dnsadapter "github.com/arpgate/arpgate/internal/adapters/dns"
	"github.com/arpgate/arpgate/internal/adapters/web"
	"github.com/arpgate/arpgate/internal/app"
	"github.com/arpgate/arpgate/internal/config"
	"github.com/arpgate/arpgate/internal/core/domain"
	"github.com/arpgate/arpgate/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	telemetry.InitMetrics()

	if cfg.Tracing {
		shutdownTracer, err := telemetry.InitTracer("1.0.0")
		if err != nil {
			log.Fatalf("Tracer init failed: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				log.Printf("Tracer shutdown error: %v", err)
			}
		}()
	}

	if cfg.Interface == "" {
		listInterfaces()
		log.Fatal("No interface selected; pass -i <interface>")
	}

	binding, err := buildBinding(cfg)
	if err != nil {
		log.Fatalf("Interface binding failed: %v", err)
	}
	log.Printf("Bound to %s: ip=%s mac=%s subnet=%s gateway=%s",
		binding.Name, binding.OwnIP, binding.OwnMAC, binding.CIDR(), binding.GatewayIP)

	channel, err := capture.OpenChannel(binding.Name)
	if err != nil {
		log.Fatalf("Capture open failed (is the capture driver installed and are we privileged?): %v", err)
	}

	resolver := dnsadapter.NewResolver(cfg.DNSTimeout())
	a := app.New(cfg, binding, channel, resolver)

	if err := a.Start(); err != nil {
		log.Fatalf("Capture start failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial sweep populates the table and usually brings the gateway in
	// with it; the targeted resolve below covers the sweeps that miss it.
	go func() {
		if _, err := a.Scan(ctx); err != nil {
			log.Printf("Initial scan failed: %v", err)
		}
	}()

	resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gateway, err := a.ResolveGateway(resolveCtx)
	cancel()
	if err != nil {
		a.Shutdown()
		log.Fatalf("Cannot run without the gateway: %v", err)
	}
	log.Printf("Gateway resolved: %s at %s", gateway.IP, gateway.MAC)

	server := web.NewServer(cfg.Addr, a, a.Events, cfg.PasswordHash)
	if err := server.Run(ctx); err != nil {
		log.Printf("Web server error: %v", err)
	}

	a.Shutdown()
	log.Println("Shutdown complete")
}

// buildBinding derives the interface binding from the OS view of the
// selected interface. The gateway defaults to the subnet's first host
// address unless overridden.
func buildBinding(cfg *config.Config) (domain.InterfaceBinding, error) {
	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return domain.InterfaceBinding{}, fmt.Errorf("looking up interface %s: %w", cfg.Interface, err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return domain.InterfaceBinding{}, fmt.Errorf("getting addresses for %s: %w", cfg.Interface, err)
	}

	var ownIP net.IP
	var netmask net.IPMask
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				ownIP = ip4
				netmask = ipNet.Mask
				break
			}
		}
	}
	if ownIP == nil {
		return domain.InterfaceBinding{}, fmt.Errorf("no IPv4 address on interface %s", cfg.Interface)
	}

	var gatewayIP net.IP
	if cfg.Gateway != "" {
		gatewayIP = net.ParseIP(cfg.Gateway)
		if gatewayIP == nil || gatewayIP.To4() == nil {
			return domain.InterfaceBinding{}, fmt.Errorf("invalid gateway IP %q", cfg.Gateway)
		}
	}

	binding, err := domain.NewInterfaceBinding(cfg.Interface, ownIP, iface.HardwareAddr, netmask, firstHostOr(gatewayIP, ownIP, netmask))
	if err != nil {
		return domain.InterfaceBinding{}, err
	}
	return binding, nil
}

// firstHostOr returns gw if set, else the first host address of the subnet.
func firstHostOr(gw, ownIP net.IP, netmask net.IPMask) net.IP {
	if gw != nil {
		return gw
	}
	network := ownIP.Mask(netmask)
	first := make(net.IP, len(network))
	copy(first, network)
	first[len(first)-1]++
	return first
}

// listInterfaces prints the capture devices pcap can see, so the operator
// can pick one. An empty list means the capture driver is missing.
func listInterfaces() {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		log.Printf("Could not enumerate capture devices: %v", err)
		return
	}
	if len(devs) == 0 {
		log.Println("No capture devices found; install libpcap/Npcap and run privileged")
		return
	}
	fmt.Fprintln(os.Stderr, "Available interfaces:")
	for _, d := range devs {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", d.Name, d.Description)
		for _, addr := range d.Addresses {
			fmt.Fprintf(os.Stderr, "      %s\n", addr.IP)
		}
	}
}
