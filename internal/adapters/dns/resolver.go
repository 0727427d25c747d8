package dns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver answers reverse (PTR) lookups against the system's configured
// nameservers. Lookup failures are expected on home networks and are
// reported as an empty name, never as a hard error to the sweep.
type Resolver struct {
	client  *dns.Client
	servers []string
}

// NewResolver reads /etc/resolv.conf for upstream servers. With no usable
// config the resolver is still returned and every lookup misses.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var servers []string
	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, s := range conf.Servers {
			servers = append(servers, ensurePort(s, conf.Port))
		}
	}

	return &Resolver{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
	}
}

// NewResolverWithServers builds a resolver against explicit upstreams,
// mainly for tests.
func NewResolverWithServers(timeout time.Duration, servers []string) *Resolver {
	r := NewResolver(timeout)
	r.servers = r.servers[:0]
	for _, s := range servers {
		r.servers = append(r.servers, ensurePort(s, "53"))
	}
	return r
}

// Reverse resolves ip to a hostname via PTR. Returns "" with a nil error
// when nothing answers or no record exists.
func (r *Resolver) Reverse(ctx context.Context, ip string) (string, error) {
	if len(r.servers) == 0 {
		return "", nil
	}

	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("reverse addr for %s: %w", ip, err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	for _, server := range r.servers {
		reply, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil || reply == nil || reply.Rcode != dns.RcodeSuccess {
			continue
		}
		for _, rr := range reply.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		return "", nil
	}
	return "", nil
}

func ensurePort(addr, port string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	if port == "" {
		port = "53"
	}
	return addr + ":" + port
}
