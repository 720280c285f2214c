package mailparse

import (
	"strings"
	"testing"
	"time"
)

const multipartMessage = "From: Alice <alice@sender.example>\r\n" +
	"To: bob@b.example.com\r\n" +
	"Cc: carol@c.example.com\r\n" +
	"Subject: report\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=frontier\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"body text\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>body html</p>\r\n" +
	"--frontier\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--frontier--\r\n"

func TestExtractDomain(t *testing.T) {
	cases := []struct {
		addr string
		want string
	}{
		{"a@b.example.com", "b.example.com"},
		{"Bob <bob@UPPER.Example.Com>", "upper.example.com"},
		{"b@b.example.com>", "b.example.com"},
		{"no-at-sign", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		if got := ExtractDomain(tc.addr); got != tc.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tc.addr, got, tc.want)
		}
	}
}

func TestExtract(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	meta, err := Extract([]byte(multipartMessage), "msg_x", now)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if meta.MessageID != "msg_x" {
		t.Errorf("MessageID = %q", meta.MessageID)
	}
	if !strings.Contains(meta.From, "alice@sender.example") {
		t.Errorf("From = %q", meta.From)
	}
	if meta.RecipientDomain != "b.example.com" {
		t.Errorf("RecipientDomain = %q", meta.RecipientDomain)
	}
	if !strings.Contains(meta.Cc, "carol@c.example.com") {
		t.Errorf("Cc = %q", meta.Cc)
	}
	if meta.Subject != "report" {
		t.Errorf("Subject = %q", meta.Subject)
	}
	if !meta.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v", meta.ReceivedAt)
	}
	if len(meta.Headers) == 0 {
		t.Fatal("no headers collected")
	}
	if meta.Headers[0].Key != "From" {
		t.Errorf("first header = %q, want original order starting at From", meta.Headers[0].Key)
	}
}

func TestExtractHeaderOrderWithDuplicates(t *testing.T) {
	raw := []byte("From: a@a.com\r\n" +
		"To: b@b.example.com\r\n" +
		"X-One: 1\r\n" +
		"X-One: 2\r\n" +
		"Subject: ordered\r\n" +
		"\r\n" +
		"body\r\n")

	meta, err := Extract(raw, "msg_h", time.Now())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var keys, xOne []string
	for _, h := range meta.Headers {
		keys = append(keys, h.Key)
		if h.Key == "X-One" {
			xOne = append(xOne, h.Value)
		}
	}
	want := []string{"From", "To", "X-One", "X-One", "Subject"}
	if len(keys) != len(want) {
		t.Fatalf("header keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("header keys = %v, want %v", keys, want)
		}
	}
	if len(xOne) != 2 || xOne[0] != "1" || xOne[1] != "2" {
		t.Errorf("duplicate values = %v, want [1 2]", xOne)
	}
}

func TestExtractMissingHeaders(t *testing.T) {
	raw := []byte("Content-Type: text/plain\r\n\r\nnaked body\r\n")
	meta, err := Extract(raw, "msg_y", time.Now())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if meta.Subject != "" || meta.From != "" {
		t.Errorf("expected empty Subject/From, got %q/%q", meta.Subject, meta.From)
	}
	if meta.RecipientDomain != "unknown" {
		t.Errorf("RecipientDomain = %q, want unknown", meta.RecipientDomain)
	}
}

func TestStructureMultipart(t *testing.T) {
	st, err := Structure([]byte(multipartMessage))
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}

	if !strings.Contains(st.Plain, "body text") {
		t.Errorf("Plain = %q", st.Plain)
	}
	if !strings.Contains(st.HTML, "body html") {
		t.Errorf("HTML = %q", st.HTML)
	}
	if len(st.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(st.Attachments))
	}
	att := st.Attachments[0]
	if att.Filename != "report.pdf" {
		t.Errorf("Filename = %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", att.ContentType)
	}
	if att.Size != 8 { // decoded length of JVBERi0xLjQ=
		t.Errorf("Size = %d, want 8", att.Size)
	}
}

func TestStructurePlainMessage(t *testing.T) {
	raw := []byte("From: a@a.com\r\nContent-Type: text/plain\r\n\r\nhello\r\n")
	st, err := Structure(raw)
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if !strings.Contains(st.Plain, "hello") {
		t.Errorf("Plain = %q", st.Plain)
	}
	if len(st.Attachments) != 0 || st.HTML != "" {
		t.Errorf("unexpected attachments or html: %+v", st)
	}
}

func TestPreview(t *testing.T) {
	p := Preview([]byte(multipartMessage))
	if !strings.Contains(p, "body text") {
		t.Errorf("Preview = %q", p)
	}
}
