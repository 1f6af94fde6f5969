package insights

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainsight-labs/chainsight/internal/app/domain/insight"
	"github.com/chainsight-labs/chainsight/internal/app/domain/shipment"
	"github.com/chainsight-labs/chainsight/internal/app/storage/memory"
)

type stubProvider struct {
	available bool
	summary   insight.Summary
	err       error
	calls     int
	received  [][]insight.ShipmentFeatures
}

func (p *stubProvider) Available() bool { return p.available }

func (p *stubProvider) Compute(ctx context.Context, features []insight.ShipmentFeatures) (insight.Summary, error) {
	p.calls++
	p.received = append(p.received, features)
	if p.err != nil {
		return insight.Summary{}, p.err
	}
	return p.summary, nil
}

type mapCache struct {
	summary *insight.Summary
	sets    int
}

func (c *mapCache) Get(ctx context.Context) (insight.Summary, bool) {
	if c.summary == nil {
		return insight.Summary{}, false
	}
	return *c.summary, true
}

func (c *mapCache) Set(ctx context.Context, summary insight.Summary) {
	c.summary = &summary
	c.sets++
}

func TestComputeUsesProvider(t *testing.T) {
	provider := &stubProvider{
		available: true,
		summary:   insight.Summary{TotalShipments: 9, DelayedShipments: 3, DelayPercentage: 33.3},
	}
	cache := &mapCache{}
	svc := NewService(memory.New(), provider, cache, nil)

	report := svc.Compute(context.Background(), nil)
	if !report.Success || !report.ProviderAvailable {
		t.Fatalf("report flags = %+v", report)
	}
	if report.Insights.TotalShipments != 9 {
		t.Fatalf("totalShipments = %d, want 9", report.Insights.TotalShipments)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}
}

func TestComputeServesCacheFirst(t *testing.T) {
	provider := &stubProvider{available: true}
	cached := insight.Summary{TotalShipments: 4, Trends: []insight.TrendPoint{}, Predictions: []insight.Prediction{}}
	cache := &mapCache{summary: &cached}
	svc := NewService(memory.New(), provider, cache, nil)

	report := svc.Compute(context.Background(), nil)
	if report.Insights.TotalShipments != 4 {
		t.Fatalf("totalShipments = %d, want cached 4", report.Insights.TotalShipments)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times behind a warm cache", provider.calls)
	}
}

func TestComputeFallsBackOnProviderError(t *testing.T) {
	store := memory.New()
	old := shipment.Shipment{ShipmentID: "SHP-OLD", Origin: "Oslo", Destination: "Bergen", Status: shipment.StatusInTransit}
	if _, err := store.Insert(context.Background(), old); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &stubProvider{available: true, err: errors.New("model service down")}
	svc := NewService(store, provider, nil, nil)
	svc.now = func() time.Time { return time.Now().Add(100 * time.Hour) }

	report := svc.Compute(context.Background(), nil)
	if !report.Success {
		t.Fatal("fallback report not successful")
	}
	if report.ProviderAvailable {
		t.Fatal("providerAvailable = true after provider failure")
	}
	if report.Insights.TotalShipments != 1 || report.Insights.DelayedShipments != 1 {
		t.Fatalf("fallback counts = %+v", report.Insights)
	}
	if report.Insights.DelayPercentage != 100 {
		t.Fatalf("delayPercentage = %v, want 100", report.Insights.DelayPercentage)
	}
}

func TestComputeFallbackEmptyFleet(t *testing.T) {
	svc := NewService(memory.New(), nil, nil, nil)

	report := svc.Compute(context.Background(), nil)
	if report.ProviderAvailable {
		t.Fatal("providerAvailable = true with nil provider")
	}
	if report.Insights.TotalShipments != 0 || report.Insights.DelayPercentage != 0 {
		t.Fatalf("empty fleet summary = %+v", report.Insights)
	}
	if report.Insights.Trends == nil || report.Insights.Predictions == nil {
		t.Fatal("slice fields must be non-nil")
	}
}

func TestComputeSnapshotsStore(t *testing.T) {
	store := memory.New()
	for _, id := range []string{"SHP-1", "SHP-2"} {
		if _, err := store.Insert(context.Background(), shipment.Shipment{ShipmentID: id, Origin: "Oslo", Destination: "Bergen", Status: shipment.StatusInTransit}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	provider := &stubProvider{available: true}
	svc := NewService(store, provider, nil, nil)

	// An empty request body still produces a full fleet snapshot.
	svc.Compute(context.Background(), nil)
	if len(provider.received) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.received))
	}
	got := provider.received[0]
	if len(got) != 2 {
		t.Fatalf("provider received %d feature rows, want 2", len(got))
	}
	ids := map[string]bool{}
	for _, f := range got {
		ids[f.ShipmentID] = true
		if f.DistanceKm < 200 || f.DistanceKm > 3200 {
			t.Fatalf("distance out of range: %+v", f)
		}
		if f.RouteComplexity < 1 || f.RouteComplexity > 5 {
			t.Fatalf("route complexity out of range: %+v", f)
		}
		if f.WeatherScore < 5 || f.WeatherScore > 10 {
			t.Fatalf("weather score out of range: %+v", f)
		}
	}
	if !ids["SHP-1"] || !ids["SHP-2"] {
		t.Fatalf("snapshot missing shipments: %v", ids)
	}

	// Derived features are stable between requests.
	svc.Compute(context.Background(), nil)
	second := provider.received[1]
	if second[0] != got[0] || second[1] != got[1] {
		t.Fatalf("derived features changed between requests: %+v vs %+v", got, second)
	}
}

func TestComputeCallerFeaturesSupplementSnapshot(t *testing.T) {
	store := memory.New()
	if _, err := store.Insert(context.Background(), shipment.Shipment{ShipmentID: "SHP-1", Origin: "Oslo", Destination: "Bergen", Status: shipment.StatusCreated}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &stubProvider{available: true}
	svc := NewService(store, provider, nil, nil)

	svc.Compute(context.Background(), []insight.ShipmentFeatures{
		{ShipmentID: "SHP-1", DistanceKm: -1},
		{ShipmentID: "SHP-EXTRA", DistanceKm: 900},
	})

	got := provider.received[0]
	if len(got) != 2 {
		t.Fatalf("provider received %d rows, want snapshot plus one supplement", len(got))
	}
	if got[0].ShipmentID != "SHP-1" || got[0].DistanceKm == -1 {
		t.Fatalf("caller row overrode the snapshot: %+v", got[0])
	}
	if got[1].ShipmentID != "SHP-EXTRA" || got[1].DistanceKm != 900 {
		t.Fatalf("supplement row missing: %+v", got)
	}
}

func TestComputeFallbackPredictions(t *testing.T) {
	svc := NewService(memory.New(), nil, nil, nil)

	features := []insight.ShipmentFeatures{
		{ShipmentID: "SHP-RISKY", DistanceKm: 4800, RouteComplexity: 9, WeatherScore: 1, CarrierRating: 1.5},
		{ShipmentID: "SHP-SAFE", DistanceKm: 50, RouteComplexity: 1, WeatherScore: 9.5, CarrierRating: 4.9},
	}

	report := svc.Compute(context.Background(), features)
	if len(report.Insights.Predictions) != 2 {
		t.Fatalf("predictions = %d, want 2", len(report.Insights.Predictions))
	}
	risky, safe := report.Insights.Predictions[0], report.Insights.Predictions[1]
	if risky.RiskScore <= safe.RiskScore {
		t.Fatalf("risk ordering wrong: risky=%v safe=%v", risky.RiskScore, safe.RiskScore)
	}
	dist := report.Insights.RiskDistribution
	if dist.Low+dist.Medium+dist.High != 2 {
		t.Fatalf("risk distribution does not cover all features: %+v", dist)
	}
	if report.Insights.HighRiskShipments != dist.High {
		t.Fatalf("highRiskShipments = %d, want %d", report.Insights.HighRiskShipments, dist.High)
	}
}

func TestHTTPProviderParsesWrappedSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("authorization = %q", got)
		}
		var req struct {
			Shipments []insight.ShipmentFeatures `json:"shipments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Shipments) != 1 || req.Shipments[0].ShipmentID != "SHP-1" {
			t.Errorf("unexpected request payload: %+v", req)
		}
		w.Write([]byte(`{"success": true, "insights": {"total_shipments": 7, "delay_percentage": 14.3}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(ProviderConfig{URL: srv.URL, APIKey: "key-123"}, nil)
	summary, err := p.Compute(context.Background(), []insight.ShipmentFeatures{{ShipmentID: "SHP-1"}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if summary.TotalShipments != 7 || summary.DelayPercentage != 14.3 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Trends == nil || summary.Predictions == nil {
		t.Fatal("slices not normalized")
	}
}

func TestHTTPProviderParsesBareSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_shipments": 3, "predictions": [{"shipment_id": "SHP-1", "risk_score": 0.8}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(ProviderConfig{URL: srv.URL}, nil)
	summary, err := p.Compute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if summary.TotalShipments != 3 || len(summary.Predictions) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestHTTPProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(ProviderConfig{URL: srv.URL}, nil)
	if _, err := p.Compute(context.Background(), nil); err == nil {
		t.Fatal("expected error on 502 response")
	}

	disabled := NewHTTPProvider(ProviderConfig{}, nil)
	if disabled.Available() {
		t.Fatal("provider without URL reports available")
	}
	if _, err := disabled.Compute(context.Background(), nil); err == nil {
		t.Fatal("expected error from unconfigured provider")
	}
}
