package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailbridge/internal/domain"

	mdns "github.com/miekg/dns"
)

// ErrNotFound reports that a record type is absent for a name (NXDOMAIN or an
// empty answer section). Callers treat it as a warning, not a failure.
var ErrNotFound = errors.New("dnscheck: record not found")

// Resolver is the narrow lookup contract the validator needs. The production
// implementation queries real nameservers; tests substitute a mock.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]domain.MXRecord, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupNS(ctx context.Context, name string) ([]string, error)
	LookupSOA(ctx context.Context, name string) (*domain.SOARecord, error)
	LookupA(ctx context.Context, host string) ([]string, error)
	LookupPTR(ctx context.Context, ip string) ([]string, error)
}

type ResolverConfig struct {
	// Nameservers to query, e.g. "8.8.8.8:53". Empty means the servers from
	// /etc/resolv.conf, falling back to public resolvers.
	Nameservers []string
	Timeout     time.Duration
	Retries     int
}

type DNSResolver struct {
	config ResolverConfig
	client *mdns.Client
}

var _ Resolver = (*DNSResolver)(nil)

func NewResolver(config ResolverConfig) *DNSResolver {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 2
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = systemNameservers()
	}
	return &DNSResolver{
		config: config,
		client: &mdns.Client{Timeout: config.Timeout},
	}
}

func systemNameservers() []string {
	conf, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		if !strings.Contains(s, ":") {
			s += ":53"
		}
		servers = append(servers, s)
	}
	return servers
}

func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for i := 0; i <= r.config.Retries; i++ {
		for _, server := range r.config.Nameservers {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = fmt.Errorf("dns query failed: %w", err)
				continue
			}
			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, nil
			case mdns.RcodeNameError:
				return nil, ErrNotFound
			default:
				lastErr = fmt.Errorf("dnscheck: rcode %s", mdns.RcodeToString[resp.Rcode])
				continue
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("dnscheck: no nameserver answered")
	}
	return nil, lastErr
}

func (r *DNSResolver) LookupMX(ctx context.Context, name string) ([]domain.MXRecord, error) {
	resp, err := r.query(ctx, name, mdns.TypeMX)
	if err != nil {
		return nil, err
	}
	var records []domain.MXRecord
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, domain.MXRecord{
				Host:     strings.TrimSuffix(mx.Mx, "."),
				Priority: mx.Preference,
				TTL:      mx.Hdr.Ttl,
			})
		}
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := r.query(ctx, name, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			// Long TXT records arrive as multiple character strings.
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *DNSResolver) LookupNS(ctx context.Context, name string) ([]string, error) {
	resp, err := r.query(ctx, name, mdns.TypeNS)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*mdns.NS); ok {
			records = append(records, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *DNSResolver) LookupSOA(ctx context.Context, name string) (*domain.SOARecord, error) {
	resp, err := r.query(ctx, name, mdns.TypeSOA)
	if err != nil {
		return nil, err
	}
	for _, rr := range resp.Answer {
		if soa, ok := rr.(*mdns.SOA); ok {
			return &domain.SOARecord{
				MName:   strings.TrimSuffix(soa.Ns, "."),
				RName:   strings.TrimSuffix(soa.Mbox, "."),
				Serial:  soa.Serial,
				Refresh: soa.Refresh,
				Retry:   soa.Retry,
				Expire:  soa.Expire,
				Minimum: soa.Minttl,
			}, nil
		}
	}
	return nil, ErrNotFound
}

func (r *DNSResolver) LookupA(ctx context.Context, host string) ([]string, error) {
	resp, err := r.query(ctx, host, mdns.TypeA)
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*mdns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	if len(ips) == 0 {
		return nil, ErrNotFound
	}
	return ips, nil
}

func (r *DNSResolver) LookupPTR(ctx context.Context, ip string) ([]string, error) {
	arpa, err := mdns.ReverseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("dnscheck: invalid ip for reverse lookup: %w", err)
	}
	resp, err := r.query(ctx, arpa, mdns.TypePTR)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*mdns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	if len(names) == 0 {
		return nil, ErrNotFound
	}
	return names, nil
}
