package dnsprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeAPI struct {
	mu       sync.Mutex
	created  []RecordSpec
	failType string // record type to reject, e.g. "TXT"
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var spec RecordSpec
			if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			fail := spec.Type == f.failType
			if !fail {
				f.created = append(f.created, spec)
			}
			f.mu.Unlock()
			if fail {
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"errors":  []map[string]any{{"code": 81057, "message": "record already exists"}},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "result": spec})
		case http.MethodGet:
			f.mu.Lock()
			records := make([]Record, 0, len(f.created))
			for i, spec := range f.created {
				if t := r.URL.Query().Get("type"); t != "" && t != spec.Type {
					continue
				}
				records = append(records, Record{
					ID:      string(rune('a' + i)),
					Type:    spec.Type,
					Name:    spec.Name,
					Content: spec.Content,
				})
			}
			f.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"success": true, "result": records})
		}
	})
}

func newTestManager(t *testing.T, api *fakeAPI) (*Manager, *Client) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	cfg := ClientConfig{Token: "test-token", ZoneID: "zone1", Domain: "bridge.example"}
	client := newClientWithOverrides(cfg, srv.URL, srv.Client())

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewManager(client, "t.me", log), client
}

func TestManaged(t *testing.T) {
	m, _ := newTestManager(t, &fakeAPI{})

	tests := []struct {
		domain string
		want   bool
	}{
		{"alice.t.me", true},
		{"t.me", true},
		{"sub.t.me.example", true},
		{"example.com", false},
	}
	for _, tt := range tests {
		if got := m.Managed(tt.domain); got != tt.want {
			t.Errorf("Managed(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}

func TestUsername(t *testing.T) {
	m, _ := newTestManager(t, &fakeAPI{})
	if got := m.Username("alice.t.me"); got != "alice" {
		t.Errorf("Username = %q, want alice", got)
	}
}

func TestEnsureIntegration(t *testing.T) {
	api := &fakeAPI{}
	m, _ := newTestManager(t, api)

	result := m.EnsureIntegration(context.Background(), "@alice")

	if result.Err != "" {
		t.Fatalf("unexpected error: %s", result.Err)
	}
	if result.Username != "alice" {
		t.Errorf("Username = %q, want alice", result.Username)
	}
	if result.Subdomain != "telegram.alice.bridge.example" {
		t.Errorf("Subdomain = %q", result.Subdomain)
	}
	if result.EmailAddress != "alice@bridge.example" {
		t.Errorf("EmailAddress = %q", result.EmailAddress)
	}
	if len(result.MXRecords) != 2 || !result.MXRecords[0].Success || !result.MXRecords[1].Success {
		t.Errorf("MXRecords = %+v, want two successes", result.MXRecords)
	}
	if result.MXRecords[0].Priority != 10 || result.MXRecords[1].Priority != 20 {
		t.Errorf("MX priorities = %d/%d, want 10/20", result.MXRecords[0].Priority, result.MXRecords[1].Priority)
	}
	if !result.TXTCreated || !result.CNAMECreated {
		t.Errorf("TXTCreated=%v CNAMECreated=%v, want both true", result.TXTCreated, result.CNAMECreated)
	}
	if len(api.created) != 4 {
		t.Errorf("api received %d records, want 4", len(api.created))
	}
}

func TestEnsureIntegrationPartialFailure(t *testing.T) {
	// A failing TXT record must not prevent the MX and CNAME attempts.
	api := &fakeAPI{failType: "TXT"}
	m, _ := newTestManager(t, api)

	result := m.EnsureIntegration(context.Background(), "bob")

	if result.Err != "" {
		t.Fatalf("unexpected top-level error: %s", result.Err)
	}
	if result.TXTCreated {
		t.Error("TXTCreated = true, want false")
	}
	if len(result.MXRecords) != 2 || !result.MXRecords[0].Success {
		t.Errorf("MXRecords = %+v, want successes despite TXT failure", result.MXRecords)
	}
	if !result.CNAMECreated {
		t.Error("CNAMECreated = false, want true")
	}
}

func TestEnsureIntegrationEmptyUsername(t *testing.T) {
	m, _ := newTestManager(t, &fakeAPI{})
	result := m.EnsureIntegration(context.Background(), "@")
	if result.Err == "" {
		t.Error("want error result for empty username")
	}
	if result.Username != "" || len(result.MXRecords) != 0 {
		t.Errorf("error result should carry only the error, got %+v", result)
	}
}

func TestListRecords(t *testing.T) {
	api := &fakeAPI{}
	m, client := newTestManager(t, api)

	m.EnsureIntegration(context.Background(), "carol")

	records, err := client.ListRecords(context.Background(), "MX")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d MX records, want 2", len(records))
	}

	all, err := client.ListRecords(context.Background(), "")
	if err != nil {
		t.Fatalf("ListRecords(all): %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d records, want 4", len(all))
	}
}
