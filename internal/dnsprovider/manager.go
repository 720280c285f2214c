package dnsprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Manager provisions the DNS records that connect a managed recipient domain
// to the bridge: two MX records, a verification TXT and a CNAME.
type Manager struct {
	client *Client
	suffix string
	log    *logrus.Entry
}

func NewManager(client *Client, managedSuffix string, log *logrus.Logger) *Manager {
	return &Manager{
		client: client,
		suffix: managedSuffix,
		log:    log.WithField("component", "dnsprovider"),
	}
}

// Managed reports whether a recipient domain belongs to the managed
// namespace.
func (m *Manager) Managed(recipientDomain string) bool {
	return strings.HasSuffix(recipientDomain, "."+m.suffix) ||
		strings.Contains(recipientDomain, m.suffix)
}

// Username derives the platform username from a managed recipient domain.
func (m *Manager) Username(recipientDomain string) string {
	name := strings.ReplaceAll(recipientDomain, "."+m.suffix, "")
	return strings.ReplaceAll(name, "@", "")
}

type MXResult struct {
	Server   string `json:"server"`
	Priority uint16 `json:"priority"`
	Success  bool   `json:"success"`
}

type Result struct {
	Username     string     `json:"username,omitempty"`
	Subdomain    string     `json:"subdomain,omitempty"`
	EmailAddress string     `json:"email_address,omitempty"`
	MXRecords    []MXResult `json:"mx_records,omitempty"`
	TXTCreated   bool       `json:"txt_created,omitempty"`
	CNAMECreated bool       `json:"cname_created,omitempty"`
	Err          string     `json:"error,omitempty"`
}

// EnsureIntegration creates the record set for one platform username. Each
// record is attempted independently; a failed record never blocks the rest.
func (m *Manager) EnsureIntegration(ctx context.Context, username string) *Result {
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return &Result{Err: "empty username"}
	}
	if err := ctx.Err(); err != nil {
		return &Result{Err: err.Error()}
	}

	zone := m.client.Domain()
	subdomain := fmt.Sprintf("telegram.%s.%s", username, zone)

	result := &Result{
		Username:     username,
		Subdomain:    subdomain,
		EmailAddress: fmt.Sprintf("%s@%s", username, zone),
	}

	for _, mx := range []struct {
		target   string
		priority uint16
	}{
		{"mx1." + zone, 10},
		{"mx2." + zone, 20},
	} {
		err := m.client.CreateRecord(ctx, RecordSpec{
			Type:     "MX",
			Name:     subdomain,
			Content:  mx.target,
			Priority: mx.priority,
		})
		if err != nil {
			m.log.WithError(err).Warn("MX record creation failed")
		}
		result.MXRecords = append(result.MXRecords, MXResult{
			Server:   mx.target,
			Priority: mx.priority,
			Success:  err == nil,
		})
	}

	err := m.client.CreateRecord(ctx, RecordSpec{
		Type:    "TXT",
		Name:    subdomain,
		Content: "telegram-mail-verify=" + username,
	})
	if err != nil {
		m.log.WithError(err).Warn("TXT record creation failed")
	}
	result.TXTCreated = err == nil

	err = m.client.CreateRecord(ctx, RecordSpec{
		Type:    "CNAME",
		Name:    fmt.Sprintf("%s.tmail.%s", username, zone),
		Content: subdomain,
	})
	if err != nil {
		m.log.WithError(err).Warn("CNAME record creation failed")
	}
	result.CNAMECreated = err == nil

	m.log.WithFields(logrus.Fields{
		"username":  username,
		"subdomain": subdomain,
	}).Info("integration records provisioned")

	return result
}
