package botworker

import (
	"context"
	"strings"
	"testing"
	"time"

	"mailbridge/internal/dnscheck"
	"mailbridge/internal/domain"
	"mailbridge/internal/redisstore"
	"mailbridge/internal/routing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
)

type stubResolver struct{}

func (stubResolver) LookupMX(context.Context, string) ([]domain.MXRecord, error) {
	return []domain.MXRecord{{Host: "mx.example.com", Priority: 10}}, nil
}
func (stubResolver) LookupTXT(context.Context, string) ([]string, error) {
	return nil, dnscheck.ErrNotFound
}
func (stubResolver) LookupNS(context.Context, string) ([]string, error) {
	return nil, dnscheck.ErrNotFound
}
func (stubResolver) LookupSOA(context.Context, string) (*domain.SOARecord, error) {
	return nil, dnscheck.ErrNotFound
}
func (stubResolver) LookupA(context.Context, string) ([]string, error) {
	return nil, dnscheck.ErrNotFound
}
func (stubResolver) LookupPTR(context.Context, string) ([]string, error) {
	return nil, dnscheck.ErrNotFound
}

func newTestHandler(t *testing.T) (*Handler, *redisstore.Store) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	mr := miniredis.RunT(t)
	store, err := redisstore.New("redis://"+mr.Addr(), 3600, log)
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Handler{
		store:     store,
		routes:    routing.NewConfig(),
		validator: dnscheck.NewValidator(stubResolver{}, log),
		startedAt: time.Now(),
		log:       log.WithField("component", "botworker"),
	}, store
}

func storeSample(t *testing.T, store *redisstore.Store, id string) {
	t.Helper()
	raw := []byte("From: a@a.com\r\nTo: b@b.example.com\r\nSubject: hi\r\nContent-Type: text/plain\r\n\r\nhello\r\n")
	meta := &domain.Metadata{
		MessageID:       id,
		From:            "a@a.com",
		To:              "b@b.example.com",
		Subject:         "hi",
		RecipientDomain: "b.example.com",
		ReceivedAt:      time.Now(),
	}
	if err := store.Store(context.Background(), id, raw, meta); err != nil {
		t.Fatalf("Store: %v", err)
	}
}

func TestDispatchHelp(t *testing.T) {
	h, _ := newTestHandler(t)
	reply := h.Dispatch(context.Background(), "start", "")
	if !strings.Contains(reply, "/set\\_target") {
		t.Errorf("help reply missing commands:\n%s", reply)
	}
}

func TestSetTargetCommands(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	if reply := h.Dispatch(ctx, "set_target", "channel 12345"); !strings.Contains(reply, "channel 12345") {
		t.Errorf("unexpected reply: %s", reply)
	}
	if got := h.routes.Resolve("any.com"); got.Kind != domain.TargetChannel || got.ChatID != 12345 {
		t.Errorf("Resolve = %v after set_target channel", got)
	}

	h.Dispatch(ctx, "set_target", "custom x.com=999")
	if got := h.routes.Resolve("x.com"); got.Kind != domain.TargetCustom || got.ChatID != 999 {
		t.Errorf("Resolve(x.com) = %v after custom mapping", got)
	}

	h.Dispatch(ctx, "set_target", "me")
	if got := h.routes.Resolve("any.com"); got.Kind != domain.TargetSelf {
		t.Errorf("Resolve = %v after set_target me", got)
	}

	if reply := h.Dispatch(ctx, "set_target", "channel notanumber"); !strings.Contains(reply, "Invalid chat id") {
		t.Errorf("unexpected reply for bad id: %s", reply)
	}
}

func TestViewAndSource(t *testing.T) {
	h, store := newTestHandler(t)
	storeSample(t, store, "msg_view")
	ctx := context.Background()

	reply := h.Dispatch(ctx, "view", "msg_view")
	for _, want := range []string{"msg_view", "a@a.com", "hi", "hello"} {
		if !strings.Contains(reply, want) {
			t.Errorf("view reply missing %q:\n%s", want, reply)
		}
	}

	reply = h.Dispatch(ctx, "source", "msg_view")
	if !strings.Contains(reply, "Subject: hi") {
		t.Errorf("source reply missing raw header:\n%s", reply)
	}

	reply = h.Dispatch(ctx, "view", "msg_missing")
	if !strings.Contains(reply, "not found") {
		t.Errorf("unexpected reply for missing id: %s", reply)
	}
}

func TestSearchAndList(t *testing.T) {
	h, store := newTestHandler(t)
	storeSample(t, store, "msg_1")
	storeSample(t, store, "msg_2")
	ctx := context.Background()

	reply := h.Dispatch(ctx, "search", "b.example.com")
	if !strings.Contains(reply, "msg_1") || !strings.Contains(reply, "msg_2") {
		t.Errorf("search reply missing messages:\n%s", reply)
	}

	reply = h.Dispatch(ctx, "search", "other.example.com")
	if !strings.Contains(reply, "No messages") {
		t.Errorf("unexpected reply for empty search: %s", reply)
	}

	reply = h.Dispatch(ctx, "list", "5")
	if !strings.Contains(reply, "Latest 5 messages") {
		t.Errorf("unexpected list reply: %s", reply)
	}
}

func TestDeleteCommand(t *testing.T) {
	h, store := newTestHandler(t)
	storeSample(t, store, "msg_gone")
	ctx := context.Background()

	if reply := h.Dispatch(ctx, "delete", "msg_gone"); !strings.Contains(reply, "Deleted") {
		t.Errorf("unexpected delete reply: %s", reply)
	}
	if reply := h.Dispatch(ctx, "view", "msg_gone"); !strings.Contains(reply, "not found") {
		t.Errorf("message still viewable after delete: %s", reply)
	}
}

func TestDNSCheckCommand(t *testing.T) {
	h, _ := newTestHandler(t)
	reply := h.Dispatch(context.Background(), "dns_check", "example.com")
	if !strings.Contains(reply, "*MX:* ok (1 records)") {
		t.Errorf("dns_check reply missing MX badge:\n%s", reply)
	}
}

func TestDNSSetupWithoutProvider(t *testing.T) {
	h, _ := newTestHandler(t)
	reply := h.Dispatch(context.Background(), "dns_setup", "alice")
	if !strings.Contains(reply, "not configured") {
		t.Errorf("unexpected reply: %s", reply)
	}
}

func TestStatusCommand(t *testing.T) {
	h, store := newTestHandler(t)
	storeSample(t, store, "msg_s")

	reply := h.Dispatch(context.Background(), "status", "")
	for _, want := range []string{"*Stored messages:* 1", "*Active target:* self"} {
		if !strings.Contains(reply, want) {
			t.Errorf("status reply missing %q:\n%s", want, reply)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t)
	if reply := h.Dispatch(context.Background(), "bogus", ""); !strings.Contains(reply, "Unknown command") {
		t.Errorf("unexpected reply: %s", reply)
	}
}
