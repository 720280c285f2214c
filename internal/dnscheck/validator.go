package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailbridge/internal/domain"

	"github.com/sirupsen/logrus"
)

// ptrLookupCap bounds reverse lookups per report.
const ptrLookupCap = 3

type Validator struct {
	resolver Resolver
	log      *logrus.Entry
}

func NewValidator(resolver Resolver, log *logrus.Logger) *Validator {
	return &Validator{
		resolver: resolver,
		log:      log.WithField("component", "dnscheck"),
	}
}

// Validate assembles a DNS report for a domain. It never returns an error: an
// absent record type leaves its list empty with a logged warning, and only a
// hard MX resolution failure lands in the report's Errors list. The partial
// report is always returned.
func (v *Validator) Validate(ctx context.Context, name string) *domain.DNSReport {
	report := &domain.DNSReport{
		Domain:    name,
		Timestamp: time.Now().UTC(),
		Errors:    []string{},
	}

	mx, err := v.resolver.LookupMX(ctx, name)
	switch {
	case err == nil:
		report.MXRecords = mx
		report.HasMX = len(mx) > 0
	case errors.Is(err, ErrNotFound):
		v.log.WithField("domain", name).Warn("no MX records")
	default:
		report.Errors = append(report.Errors, fmt.Sprintf("mx lookup: %v", err))
		v.log.WithField("domain", name).WithError(err).Error("MX lookup failed")
	}

	if txt, err := v.resolver.LookupTXT(ctx, name); err == nil {
		report.TXTRecords = txt
	} else {
		v.log.WithField("domain", name).WithError(err).Warn("no TXT records")
	}

	if ns, err := v.resolver.LookupNS(ctx, name); err == nil {
		report.NSRecords = ns
	} else {
		v.log.WithField("domain", name).WithError(err).Warn("no NS records")
	}

	if soa, err := v.resolver.LookupSOA(ctx, name); err == nil {
		report.SOARecord = soa
	} else {
		v.log.WithField("domain", name).WithError(err).Warn("no SOA record")
	}

	for i := range report.MXRecords {
		mx := &report.MXRecords[i]
		ips, err := v.resolver.LookupA(ctx, mx.Host)
		if err != nil {
			v.log.WithField("host", mx.Host).WithError(err).Warn("MX host does not resolve")
			continue
		}
		mx.Resolved = len(ips) > 0
		for _, ip := range ips {
			report.ARecords = append(report.ARecords, domain.ARecord{Host: mx.Host, IP: ip})
		}
	}

	for i := range report.ARecords {
		if i >= ptrLookupCap {
			break
		}
		a := &report.ARecords[i]
		ptr, err := v.resolver.LookupPTR(ctx, a.IP)
		if err != nil {
			continue
		}
		a.PTR = ptr
	}

	v.log.WithFields(logrus.Fields{
		"domain": name,
		"mx":     len(report.MXRecords),
		"errors": len(report.Errors),
	}).Info("domain validated")

	return report
}
