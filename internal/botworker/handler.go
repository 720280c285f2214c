package botworker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailbridge/internal/dnscheck"
	"mailbridge/internal/dnsprovider"
	"mailbridge/internal/domain"
	"mailbridge/internal/ingest"
	"mailbridge/internal/notify"
	"mailbridge/internal/redisstore"
	"mailbridge/internal/routing"

	"github.com/sirupsen/logrus"
)

const helpText = `*Mail Bridge*

*Routing:*
/set\_target me - deliver to yourself
/set\_target channel <id> - deliver to a channel
/set\_target group <id> - deliver to a group
/set\_target custom <domain>=<id> - per-domain override

*Messages:*
/view <message\_id> - view a message
/source <message\_id> - raw source
/search [domain] - search by recipient domain
/list [n] - most recent messages
/delete <message\_id> - delete a message

*DNS:*
/dns\_setup <username> - provision records for a username
/dns\_check <domain> - validate a domain
/dns\_records [type] - list provider records

*System:*
/status - system status`

// Handler executes one administrative command and renders the reply. It is
// split from the transport loop so commands are testable without a bot
// connection.
type Handler struct {
	store          *redisstore.Store
	routes         *routing.Config
	validator      *dnscheck.Validator
	manager        *dnsprovider.Manager // nil without provider config
	providerClient *dnsprovider.Client  // nil without provider config
	pipeline       *ingest.Pipeline
	startedAt      time.Time
	log            *logrus.Entry
}

func (h *Handler) Dispatch(ctx context.Context, command, arguments string) string {
	args := strings.Fields(arguments)

	switch command {
	case "start", "help":
		return helpText
	case "set_target":
		return h.setTarget(args)
	case "view":
		return h.view(ctx, args)
	case "source":
		return h.source(ctx, args)
	case "search":
		return h.search(ctx, args)
	case "list":
		return h.list(ctx, args)
	case "delete":
		return h.delete(ctx, args)
	case "dns_setup":
		return h.dnsSetup(ctx, args)
	case "dns_check":
		return h.dnsCheck(ctx, args)
	case "dns_records":
		return h.dnsRecords(ctx, args)
	case "status":
		return h.status(ctx)
	default:
		return "Unknown command. Send /help for the command list."
	}
}

func (h *Handler) setTarget(args []string) string {
	if len(args) == 0 {
		return "Usage: /set_target me | channel <id> | group <id> | custom <domain>=<id>"
	}

	switch kind := strings.ToLower(args[0]); kind {
	case "me":
		if err := h.routes.SetActive(domain.Target{Kind: domain.TargetSelf}); err != nil {
			return "Error: " + err.Error()
		}
		return "Notifications will be delivered to you."
	case "channel", "group":
		if len(args) < 2 {
			return fmt.Sprintf("Usage: /set_target %s <id>", kind)
		}
		chatID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return "Invalid chat id: " + args[1]
		}
		target := domain.Target{Kind: domain.TargetKind(kind), ChatID: chatID}
		if err := h.routes.SetActive(target); err != nil {
			return "Error: " + err.Error()
		}
		return fmt.Sprintf("Notifications will be delivered to %s %d.", kind, chatID)
	case "custom":
		if len(args) < 2 || !strings.Contains(args[1], "=") {
			return "Usage: /set_target custom <domain>=<id>"
		}
		parts := strings.SplitN(args[1], "=", 2)
		chatID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return "Invalid chat id: " + parts[1]
		}
		name := strings.ToLower(parts[0])
		h.routes.SetMapping(name, chatID)
		return fmt.Sprintf("Mail for `%s` will be delivered to `%d`.", name, chatID)
	default:
		return "Unknown target type: " + args[0]
	}
}

func (h *Handler) view(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /view <message_id>"
	}

	rec, err := h.store.Retrieve(ctx, args[0])
	if err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			return "Message not found (it may have expired)."
		}
		h.log.WithError(err).Error("view failed")
		return "Error: " + err.Error()
	}

	meta := rec.Metadata
	var b strings.Builder
	fmt.Fprintf(&b, "*Message:* `%s`\n\n", meta.MessageID)
	fmt.Fprintf(&b, "*From:* %s\n", meta.From)
	fmt.Fprintf(&b, "*To:* %s\n", meta.To)
	fmt.Fprintf(&b, "*Subject:* %s\n", meta.Subject)
	fmt.Fprintf(&b, "*Date:* %s\n", meta.Date)
	fmt.Fprintf(&b, "*Received:* %s\n", meta.ReceivedAt.Format(time.RFC3339))

	if rec.Structure != nil {
		if rec.Structure.Plain != "" {
			b.WriteString("\n*Body:*\n```\n")
			b.WriteString(notify.Truncate(rec.Structure.Plain, 1500))
			b.WriteString("\n```\n")
		}
		if n := len(rec.Structure.Attachments); n > 0 {
			fmt.Fprintf(&b, "\n*Attachments:* %d\n", n)
			for i, att := range rec.Structure.Attachments {
				if i == 5 {
					break
				}
				fmt.Fprintf(&b, "- %s (%d bytes)\n", att.ContentType, att.Size)
			}
		}
	}
	return b.String()
}

func (h *Handler) source(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /source <message_id>"
	}

	rec, err := h.store.Retrieve(ctx, args[0])
	if err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			return "Message not found (it may have expired)."
		}
		return "Error: " + err.Error()
	}
	return "```\n" + notify.Truncate(string(rec.Raw), 3500) + "\n```"
}

func (h *Handler) search(ctx context.Context, args []string) string {
	name := ""
	if len(args) > 0 {
		name = strings.ToLower(args[0])
	}

	records, err := h.store.Search(ctx, name, 20, 0)
	if err != nil {
		return "Error: " + err.Error()
	}
	title := "All messages"
	if name != "" {
		title = "Messages for " + name
	}
	return formatList(title, records)
}

func (h *Handler) list(ctx context.Context, args []string) string {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.store.Search(ctx, "", limit, 0)
	if err != nil {
		return "Error: " + err.Error()
	}
	return formatList(fmt.Sprintf("Latest %d messages", limit), records)
}

func (h *Handler) delete(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /delete <message_id>"
	}
	if err := h.store.Delete(ctx, args[0]); err != nil {
		return "Error: " + err.Error()
	}
	return "Deleted `" + args[0] + "`."
}

func (h *Handler) dnsSetup(ctx context.Context, args []string) string {
	if h.manager == nil {
		return "DNS provider is not configured."
	}
	if len(args) == 0 {
		return "Usage: /dns_setup <username>"
	}

	result := h.manager.EnsureIntegration(ctx, args[0])
	if result.Err != "" {
		return "Provisioning failed: " + result.Err
	}

	var b strings.Builder
	b.WriteString("*DNS setup complete*\n\n")
	fmt.Fprintf(&b, "*Username:* @%s\n", result.Username)
	fmt.Fprintf(&b, "*Mail address:* %s\n", result.EmailAddress)
	fmt.Fprintf(&b, "*Subdomain:* %s\n\n", result.Subdomain)
	b.WriteString("*MX records:*\n")
	for _, mx := range result.MXRecords {
		status := "ok"
		if !mx.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s (priority %d): %s\n", mx.Server, mx.Priority, status)
	}
	fmt.Fprintf(&b, "*TXT:* %v, *CNAME:* %v\n", result.TXTCreated, result.CNAMECreated)
	return b.String()
}

func (h *Handler) dnsCheck(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /dns_check <domain>"
	}

	report := h.validator.Validate(ctx, strings.ToLower(args[0]))

	var b strings.Builder
	fmt.Fprintf(&b, "*DNS report for %s*\n\n", report.Domain)
	badge := "warn"
	if report.HasMX {
		badge = "ok"
	}
	fmt.Fprintf(&b, "*MX:* %s (%d records)\n", badge, len(report.MXRecords))
	for _, mx := range report.MXRecords {
		fmt.Fprintf(&b, "- %s (priority %d, resolved %v)\n", mx.Host, mx.Priority, mx.Resolved)
	}
	fmt.Fprintf(&b, "*TXT:* %d, *NS:* %d, *A:* %d\n",
		len(report.TXTRecords), len(report.NSRecords), len(report.ARecords))
	if report.SOARecord != nil {
		fmt.Fprintf(&b, "*SOA:* %s (serial %d)\n", report.SOARecord.MName, report.SOARecord.Serial)
	}
	if len(report.Errors) > 0 {
		b.WriteString("*Errors:*\n")
		for _, e := range report.Errors {
			b.WriteString("- " + e + "\n")
		}
	}
	return b.String()
}

func (h *Handler) dnsRecords(ctx context.Context, args []string) string {
	if h.providerClient == nil {
		return "DNS provider is not configured."
	}
	recordType := ""
	if len(args) > 0 {
		recordType = strings.ToUpper(args[0])
	}

	records, err := h.providerClient.ListRecords(ctx, recordType)
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(records) == 0 {
		return "No records found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%d records*\n", len(records))
	for i, r := range records {
		if i == 25 {
			fmt.Fprintf(&b, "... and %d more\n", len(records)-i)
			break
		}
		fmt.Fprintf(&b, "- %s %s -> %s\n", r.Type, r.Name, r.Content)
	}
	return b.String()
}

func (h *Handler) status(ctx context.Context) string {
	messages, err := h.store.CountMessages(ctx)
	if err != nil {
		return "Error: " + err.Error()
	}
	domains, _ := h.store.CountDomains(ctx)
	last24h, _ := h.store.MessagesSince(ctx, time.Now().Add(-24*time.Hour))
	active, mapping := h.routes.Snapshot()

	var b strings.Builder
	b.WriteString("*System running*\n\n")
	fmt.Fprintf(&b, "*Stored messages:* %d (%d in 24h)\n", messages, last24h)
	fmt.Fprintf(&b, "*Recipient domains:* %d\n", domains)
	fmt.Fprintf(&b, "*Active target:* %s\n", active)
	fmt.Fprintf(&b, "*Domain mappings:* %d\n", len(mapping))
	if h.pipeline != nil {
		fmt.Fprintf(&b, "*Accepted since start:* %d\n", h.pipeline.Count())
	}
	fmt.Fprintf(&b, "*Uptime:* %s\n", time.Since(h.startedAt).Round(time.Second))
	fmt.Fprintf(&b, "*Provider:* %v\n", h.manager != nil)
	return b.String()
}

func formatList(title string, records []*domain.StorageRecord) string {
	if len(records) == 0 {
		return "No messages found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", title)
	for i, rec := range records {
		meta := rec.Metadata
		fmt.Fprintf(&b, "%d. `%s`\n   %s -> %s\n   %s | %s\n",
			i+1,
			meta.MessageID,
			notify.Truncate(meta.From, 30),
			notify.Truncate(meta.To, 30),
			notify.Truncate(meta.Subject, 50),
			meta.ReceivedAt.Format(time.RFC3339),
		)
	}
	return b.String()
}
