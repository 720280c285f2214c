package notify

import (
	"fmt"
	"strings"

	"mailbridge/internal/domain"
)

// previewLimit caps the body excerpt embedded in a notification.
const previewLimit = 200

// Format renders the notification for one ingested message.
func Format(seq uint64, meta *domain.Metadata, preview string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\U0001F4E7 *New message #%d*\n", seq)
	fmt.Fprintf(&b, "`%s`\n\n", meta.MessageID)
	fmt.Fprintf(&b, "*From:* `%s`\n", meta.From)
	fmt.Fprintf(&b, "*To:* `%s`\n", meta.To)
	fmt.Fprintf(&b, "*Subject:* %s\n", meta.Subject)
	fmt.Fprintf(&b, "*Date:* %s\n", meta.Date)

	badge := "warn"
	mxCount := 0
	if meta.DNSReport != nil {
		mxCount = len(meta.DNSReport.MXRecords)
		if meta.DNSReport.HasMX {
			badge = "ok"
		}
	}
	fmt.Fprintf(&b, "*DNS:* %s (%d MX)\n", badge, mxCount)

	if preview != "" {
		// The excerpt always carries the trailing marker, even when the body
		// fits within the limit.
		runes := []rune(preview)
		if len(runes) > previewLimit {
			runes = runes[:previewLimit]
		}
		b.WriteString("\n*Preview:*\n```\n")
		b.WriteString(string(runes))
		b.WriteString("...\n```\n")
	}

	b.WriteString("\n*Commands:*\n")
	fmt.Fprintf(&b, "/view %s - full message\n", meta.MessageID)
	fmt.Fprintf(&b, "/source %s - raw source\n", meta.MessageID)
	b.WriteString("/set\\_target me|channel <id>|group <id>|custom <domain>=<id>\n")

	return b.String()
}

// Truncate shortens s to at most limit runes, marking the cut with an
// ellipsis.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
