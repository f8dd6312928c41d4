package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensnatch/snatchd/pkg/types"
)

type staticSettings struct {
	tg *types.TelegramSettings
	cf *types.CloudflareSettings
}

func (s staticSettings) TelegramSettings() (*types.TelegramSettings, error)     { return s.tg, nil }
func (s staticSettings) CloudflareSettings() (*types.CloudflareSettings, error) { return s.cf, nil }

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(staticSettings{tg: &types.TelegramSettings{
		BotToken: "123:abc", ChatID: "42",
	}})
	n.baseURL = srv.URL
	n.Send(context.Background(), "🎉 done")

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody["chat_id"])
	assert.Equal(t, "🎉 done", gotBody["text"])
	assert.Equal(t, "Markdown", gotBody["parse_mode"])
}

func TestTelegramSkipsWhenUnconfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected without bot settings")
	}))
	defer srv.Close()

	n := NewTelegramNotifier(staticSettings{tg: &types.TelegramSettings{}})
	n.baseURL = srv.URL
	n.Send(context.Background(), "ignored")
}

func cloudflareConfig() staticSettings {
	return staticSettings{cf: &types.CloudflareSettings{
		APIToken: "cf-token", ZoneID: "zone1", Domain: "example.com",
	}}
}

func TestCloudflareUpsertCreates(t *testing.T) {
	var created cfRecord
	var lookupQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cf-token", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet:
			lookupQuery = r.URL.RawQuery
			json.NewEncoder(w).Encode(cfListResponse{Success: true})
		case r.Method == http.MethodPost:
			assert.Equal(t, "/zones/zone1/dns_records", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			json.NewEncoder(w).Encode(cfWriteResponse{Success: true})
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewCloudflareBinder(cloudflareConfig())
	c.baseURL = srv.URL
	line := c.Upsert(context.Background(), "demo-vm", "203.0.113.4", "A")

	assert.Equal(t, "✅ DNS A record demo-vm.example.com -> 203.0.113.4 created", line)
	assert.Contains(t, lookupQuery, "type=A")
	assert.Contains(t, lookupQuery, "name=demo-vm.example.com")
	assert.Equal(t, cfRecord{
		Type: "A", Name: "demo-vm.example.com", Content: "203.0.113.4",
		TTL: 60, Proxied: false,
	}, created)
}

func TestCloudflareUpsertUpdatesExisting(t *testing.T) {
	var updatedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(cfListResponse{
				Success: true,
				Result:  []cfRecord{{ID: "rec-1"}},
			})
		case http.MethodPut:
			updatedPath = r.URL.Path
			json.NewEncoder(w).Encode(cfWriteResponse{Success: true})
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewCloudflareBinder(cloudflareConfig())
	c.baseURL = srv.URL
	line := c.Upsert(context.Background(), "demo-vm", "2001:db8::1", "AAAA")

	assert.Equal(t, "/zones/zone1/dns_records/rec-1", updatedPath)
	assert.Equal(t, "✅ DNS AAAA record demo-vm.example.com -> 2001:db8::1 updated", line)
}

func TestCloudflareUpsertUnconfigured(t *testing.T) {
	c := NewCloudflareBinder(staticSettings{cf: &types.CloudflareSettings{}})
	line := c.Upsert(context.Background(), "demo-vm", "203.0.113.4", "A")
	assert.Equal(t, "⚠️ DNS binding skipped: Cloudflare is not configured", line)
}

func TestCloudflareUpsertReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(cfListResponse{Success: true})
		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"errors":  []map[string]string{{"message": "Invalid DNS record content"}},
			})
		}
	}))
	defer srv.Close()

	c := NewCloudflareBinder(cloudflareConfig())
	c.baseURL = srv.URL
	line := c.Upsert(context.Background(), "demo-vm", "not-an-ip", "A")

	assert.Equal(t, "❌ DNS binding for demo-vm.example.com failed: Invalid DNS record content", line)
}
