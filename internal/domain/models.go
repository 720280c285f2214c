package domain

import (
	"fmt"
	"time"
)

// Header is a single message header; order and duplicates are preserved.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Metadata struct {
	MessageID       string     `json:"message_id"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	Cc              string     `json:"cc,omitempty"`
	Bcc             string     `json:"bcc,omitempty"`
	Subject         string     `json:"subject"`
	Date            string     `json:"date"`
	RecipientDomain string     `json:"recipient_domain"`
	ReceivedAt      time.Time  `json:"received_at"`
	Headers         []Header   `json:"headers"`
	DNSReport       *DNSReport `json:"dns_report,omitempty"`
}

type MXRecord struct {
	Host     string `json:"host"`
	Priority uint16 `json:"priority"`
	TTL      uint32 `json:"ttl"`
	Resolved bool   `json:"resolved"`
}

type ARecord struct {
	Host string   `json:"host"`
	IP   string   `json:"ip"`
	PTR  []string `json:"ptr,omitempty"`
}

type SOARecord struct {
	MName   string `json:"mname"`
	RName   string `json:"rname"`
	Serial  uint32 `json:"serial"`
	Refresh uint32 `json:"refresh"`
	Retry   uint32 `json:"retry"`
	Expire  uint32 `json:"expire"`
	Minimum uint32 `json:"minimum"`
}

type DNSReport struct {
	Domain     string     `json:"domain"`
	Timestamp  time.Time  `json:"timestamp"`
	MXRecords  []MXRecord `json:"mx_records"`
	TXTRecords []string   `json:"txt_records"`
	NSRecords  []string   `json:"ns_records"`
	ARecords   []ARecord  `json:"a_records"`
	SOARecord  *SOARecord `json:"soa_record,omitempty"`
	HasMX      bool       `json:"has_mx"`
	Errors     []string   `json:"errors"`
}

// PartInfo describes one MIME part after a structure walk.
type PartInfo struct {
	ContentType        string `json:"content_type"`
	ContentDisposition string `json:"content_disposition,omitempty"`
	Filename           string `json:"filename,omitempty"`
	Size               int    `json:"size"`
}

type BodyStructure struct {
	Attachments []PartInfo `json:"attachments"`
	Parts       []PartInfo `json:"parts"`
	Plain       string     `json:"plain,omitempty"`
	HTML        string     `json:"html,omitempty"`
}

// StorageRecord pairs the raw message with its metadata; the parsed body
// structure is reconstructed on retrieval, not stored.
type StorageRecord struct {
	Raw       []byte         `json:"-"`
	Metadata  *Metadata      `json:"metadata"`
	Structure *BodyStructure `json:"structure,omitempty"`
}

type TargetKind string

const (
	TargetSelf    TargetKind = "self"
	TargetChannel TargetKind = "channel"
	TargetGroup   TargetKind = "group"
	TargetCustom  TargetKind = "custom"
)

// Target is the notification destination for one message. ChatID is zero for
// TargetSelf, which the transport maps to the owner chat.
type Target struct {
	Kind   TargetKind `json:"kind"`
	ChatID int64      `json:"chat_id,omitempty"`
}

func (t Target) String() string {
	if t.Kind == TargetSelf {
		return string(TargetSelf)
	}
	return fmt.Sprintf("%s:%d", t.Kind, t.ChatID)
}
