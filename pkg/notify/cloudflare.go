package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/opensnatch/snatchd/pkg/log"
	"github.com/opensnatch/snatchd/pkg/types"
)

// DNSBinder upserts an address record and returns a single-line,
// human-readable status to append to the task result. Like Telegram,
// it is best-effort: failures are reported in the line, never as errors.
type DNSBinder interface {
	Upsert(ctx context.Context, subdomain, ip, recordType string) string
}

// CloudflareSettingsSource supplies the current Cloudflare settings.
type CloudflareSettingsSource interface {
	CloudflareSettings() (*types.CloudflareSettings, error)
}

// CloudflareBinder manages A/AAAA records through the Cloudflare v4 API.
type CloudflareBinder struct {
	settings CloudflareSettingsSource
	client   *http.Client
	baseURL  string
}

// NewCloudflareBinder creates a binder reading settings from source.
func NewCloudflareBinder(source CloudflareSettingsSource) *CloudflareBinder {
	return &CloudflareBinder{
		settings: source,
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  "https://api.cloudflare.com/client/v4",
	}
}

type cfRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

type cfListResponse struct {
	Success bool       `json:"success"`
	Result  []cfRecord `json:"result"`
}

type cfWriteResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Upsert looks up an existing record of the given type and name and
// updates it in place, or creates one when none exists. TTL 60,
// unproxied.
func (c *CloudflareBinder) Upsert(ctx context.Context, subdomain, ip, recordType string) string {
	logger := log.WithComponent("cloudflare")

	cfg, err := c.settings.CloudflareSettings()
	if err != nil || cfg == nil || cfg.APIToken == "" || cfg.ZoneID == "" || cfg.Domain == "" {
		return "⚠️ DNS binding skipped: Cloudflare is not configured"
	}

	fqdn := fmt.Sprintf("%s.%s", subdomain, cfg.Domain)

	existing, err := c.lookup(ctx, cfg, recordType, fqdn)
	if err != nil {
		logger.Warn().Err(err).Str("name", fqdn).Msg("cloudflare lookup failed")
		return fmt.Sprintf("❌ DNS binding for %s failed: %v", fqdn, err)
	}

	record := cfRecord{
		Type:    recordType,
		Name:    fqdn,
		Content: ip,
		TTL:     60,
		Proxied: false,
	}

	var method, endpoint string
	if existing != "" {
		method = http.MethodPut
		endpoint = fmt.Sprintf("%s/zones/%s/dns_records/%s", c.baseURL, cfg.ZoneID, existing)
	} else {
		method = http.MethodPost
		endpoint = fmt.Sprintf("%s/zones/%s/dns_records", c.baseURL, cfg.ZoneID)
	}

	if err := c.write(ctx, cfg, method, endpoint, record); err != nil {
		logger.Warn().Err(err).Str("name", fqdn).Msg("cloudflare write failed")
		return fmt.Sprintf("❌ DNS binding for %s failed: %v", fqdn, err)
	}

	verb := "created"
	if existing != "" {
		verb = "updated"
	}
	return fmt.Sprintf("✅ DNS %s record %s -> %s %s", recordType, fqdn, ip, verb)
}

// lookup returns the id of an existing record, or empty.
func (c *CloudflareBinder) lookup(ctx context.Context, cfg *types.CloudflareSettings, recordType, fqdn string) (string, error) {
	endpoint := fmt.Sprintf("%s/zones/%s/dns_records?type=%s&name=%s",
		c.baseURL, cfg.ZoneID, url.QueryEscape(recordType), url.QueryEscape(fqdn))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from Cloudflare", resp.StatusCode)
	}

	var list cfListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return "", err
	}
	if !list.Success {
		return "", fmt.Errorf("Cloudflare reported failure listing records")
	}
	if len(list.Result) == 0 {
		return "", nil
	}
	return list.Result[0].ID, nil
}

func (c *CloudflareBinder) write(ctx context.Context, cfg *types.CloudflareSettings, method, endpoint string, record cfRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var write cfWriteResponse
	if err := json.Unmarshal(body, &write); err != nil {
		return fmt.Errorf("HTTP %d, unparseable response", resp.StatusCode)
	}
	if !write.Success {
		if len(write.Errors) > 0 {
			return fmt.Errorf("%s", write.Errors[0].Message)
		}
		return fmt.Errorf("HTTP %d from Cloudflare", resp.StatusCode)
	}
	return nil
}
