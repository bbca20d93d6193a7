package peer

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// SRVPrefix marks a tracker address that must be resolved through DNS.
	SRVPrefix = "srv:"

	// SRVService is the SRV service label: _blockfs._tcp.{domain}.
	SRVService = "blockfs"

	// fallbackUpstream is used when no system resolver configuration exists.
	fallbackUpstream = "8.8.8.8:53"

	// srvTimeout bounds one SRV exchange.
	srvTimeout = 10 * time.Second
)

// SRVLookup resolves SRV records. Tests substitute their own implementation.
type SRVLookup interface {
	LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error)
}

// DNSResolver implements SRVLookup by querying an upstream recursive resolver
// directly.
type DNSResolver struct {
	// Upstream is the resolver address (e.g., "8.8.8.8:53").
	Upstream string
}

// NewDNSResolver creates a resolver. An empty upstream selects the first
// nameserver in /etc/resolv.conf, falling back to 8.8.8.8:53.
func NewDNSResolver(upstream string) *DNSResolver {
	if upstream == "" {
		upstream = fallbackUpstream
		if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
			upstream = net.JoinHostPort(cfg.Servers[0], cfg.Port)
		}
	}
	return &DNSResolver{Upstream: upstream}
}

// LookupSRV queries _{service}._{proto}.{name} SRV records.
func (r *DNSResolver) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	qname := fmt.Sprintf("_%s._%s.%s", service, proto, name)

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(qname), dns.TypeSRV)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: srvTimeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s SRV: %w", ErrTrackerLookup, qname, err)
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("%w: query %s SRV: rcode %s", ErrTrackerLookup, qname, dns.RcodeToString[resp.Rcode])
	}

	var srvs []*net.SRV
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			srvs = append(srvs, &net.SRV{
				Target:   strings.TrimSuffix(srv.Target, "."),
				Port:     srv.Port,
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
	}
	return srvs, nil
}

// ResolveTracker turns a configured tracker address into candidate endpoints.
// "srv:{domain}" is resolved through _blockfs._tcp.{domain} and ordered by
// priority (ascending) then weight (descending); anything else is returned as is.
func ResolveTracker(ctx context.Context, address string, lookup SRVLookup) ([]string, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrTrackerLookup)
	}
	if !strings.HasPrefix(address, SRVPrefix) {
		return []string{address}, nil
	}

	domain := strings.TrimPrefix(address, SRVPrefix)
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrTrackerLookup)
	}

	addrs, err := lookup.LookupSRV(ctx, SRVService, "tcp", domain)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: _%s._tcp.%s", ErrNoEndpoints, SRVService, domain)
	}

	sort.SliceStable(addrs, func(i, j int) bool {
		if addrs[i].Priority != addrs[j].Priority {
			return addrs[i].Priority < addrs[j].Priority
		}
		return addrs[i].Weight > addrs[j].Weight
	})

	endpoints := make([]string, len(addrs))
	for i, srv := range addrs {
		endpoints[i] = net.JoinHostPort(strings.TrimSuffix(srv.Target, "."), fmt.Sprint(srv.Port))
	}
	return endpoints, nil
}
