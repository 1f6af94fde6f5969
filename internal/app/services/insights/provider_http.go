package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chainsight-labs/chainsight/internal/app/domain/insight"
	"github.com/chainsight-labs/chainsight/pkg/logger"
)

// ProviderConfig holds the connection settings for the external analytics
// service. An empty URL disables the provider.
type ProviderConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 8 * time.Second

// HTTPProvider calls the analytics service over HTTP. The response format
// drifts between provider versions, so parsing is lenient: the summary is
// accepted either under an "insights" key or at the top level.
type HTTPProvider struct {
	cfg        ProviderConfig
	httpClient *http.Client
	log        *logger.Logger
}

// NewHTTPProvider builds a provider client.
func NewHTTPProvider(cfg ProviderConfig, log *logger.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProviderTimeout
	}
	if log == nil {
		log = logger.NewDefault("insights-provider")
	}
	return &HTTPProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// Available reports whether a provider URL is configured.
func (p *HTTPProvider) Available() bool {
	return p.cfg.URL != ""
}

// Compute posts the shipment feature snapshot and parses the returned
// summary.
func (p *HTTPProvider) Compute(ctx context.Context, features []insight.ShipmentFeatures) (insight.Summary, error) {
	if !p.Available() {
		return insight.Summary{}, fmt.Errorf("insights provider not configured")
	}

	body, err := json.Marshal(map[string]interface{}{"shipments": features})
	if err != nil {
		return insight.Summary{}, fmt.Errorf("marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return insight.Summary{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return insight.Summary{}, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return insight.Summary{}, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return insight.Summary{}, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	return parseSummary(respBody)
}

func parseSummary(body []byte) (insight.Summary, error) {
	if !gjson.ValidBytes(body) {
		return insight.Summary{}, fmt.Errorf("provider returned invalid JSON")
	}

	raw := gjson.GetBytes(body, "insights")
	if !raw.Exists() {
		raw = gjson.ParseBytes(body)
	}
	if !raw.IsObject() {
		return insight.Summary{}, fmt.Errorf("provider returned no insights object")
	}

	var summary insight.Summary
	if err := json.Unmarshal([]byte(raw.Raw), &summary); err != nil {
		return insight.Summary{}, fmt.Errorf("decode insights: %w", err)
	}
	normalize(&summary)
	return summary, nil
}

// normalize keeps slice fields non-nil so clients always see arrays.
func normalize(s *insight.Summary) {
	if s.Trends == nil {
		s.Trends = []insight.TrendPoint{}
	}
	if s.Predictions == nil {
		s.Predictions = []insight.Prediction{}
	}
}
