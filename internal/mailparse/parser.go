package mailparse

import (
	"bytes"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"
	"time"

	"mailbridge/internal/domain"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Extract derives routing metadata from a raw message. Missing headers yield
// empty fields; only a message the reader cannot parse at all is an error.
func Extract(raw []byte, id string, now time.Time) (*domain.Metadata, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	header := mr.Header

	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}

	to := header.Get("To")

	meta := &domain.Metadata{
		MessageID:       id,
		From:            header.Get("From"),
		To:              to,
		Cc:              header.Get("Cc"),
		Bcc:             header.Get("Bcc"),
		Subject:         subject,
		Date:            header.Get("Date"),
		RecipientDomain: ExtractDomain(to),
		ReceivedAt:      now.UTC(),
		Headers:         collectHeaders(header),
	}
	return meta, nil
}

// ExtractDomain returns the lower-cased domain of an address, or "unknown"
// when no @ is present.
func ExtractDomain(addr string) string {
	if parsed, err := netmail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	i := strings.Index(addr, "@")
	if i < 0 {
		return "unknown"
	}
	d := strings.ToLower(strings.TrimSpace(addr[i+1:]))
	d = strings.TrimSuffix(d, ">")
	if d == "" {
		return "unknown"
	}
	return d
}

// collectHeaders preserves the original header order including duplicates.
// For a parsed message go-message iterates fields in wire order.
func collectHeaders(h mail.Header) []domain.Header {
	var out []domain.Header
	fields := h.Fields()
	for fields.Next() {
		out = append(out, domain.Header{Key: fields.Key(), Value: fields.Value()})
	}
	return out
}

// Structure walks the MIME tree depth-first and classifies every part as an
// attachment, plain body, HTML body or other. Part sizes are decoded bytes.
// A message with no recognizable body yields empty body fields, not an error.
func Structure(raw []byte) (*domain.BodyStructure, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	s := &domain.BodyStructure{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			break
		}

		body, _ := io.ReadAll(p.Body)

		switch h := p.Header.(type) {
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ctype, _, _ := h.ContentType()
			s.Attachments = append(s.Attachments, domain.PartInfo{
				ContentType:        ctype,
				ContentDisposition: "attachment",
				Filename:           filename,
				Size:               len(body),
			})
		case *mail.InlineHeader:
			ctype, _, _ := h.ContentType()
			switch ctype {
			case "text/plain":
				s.Plain += string(body)
			case "text/html":
				s.HTML += string(body)
			default:
				s.Parts = append(s.Parts, domain.PartInfo{
					ContentType: ctype,
					Size:        len(body),
				})
			}
		}
	}
	return s, nil
}

// Preview returns the plain-text body preview used in notifications.
func Preview(raw []byte) string {
	s, err := Structure(raw)
	if err != nil {
		return ""
	}
	return s.Plain
}
