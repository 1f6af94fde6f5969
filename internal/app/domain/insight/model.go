// Package insight defines the analytics report types exchanged with the
// external insights provider. Field names follow the provider's wire format.
package insight

// TrendPoint is a weekly delayed/on-time bucket.
type TrendPoint struct {
	Week    string `json:"week"`
	Delayed int    `json:"delayed"`
	OnTime  int    `json:"on_time"`
}

// RiskDistribution buckets shipments by predicted risk.
type RiskDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Prediction is a per-shipment forecast.
type Prediction struct {
	ShipmentID          string  `json:"shipment_id"`
	DelayProbability    float64 `json:"delay_probability"`
	EstimatedDelayHours float64 `json:"estimated_delay_hours"`
	AnomalyProbability  float64 `json:"anomaly_probability"`
	RiskScore           float64 `json:"risk_score"`
}

// Summary is the aggregated insight payload.
type Summary struct {
	TotalShipments    int              `json:"total_shipments"`
	DelayedShipments  int              `json:"delayed_shipments"`
	DelayPercentage   float64          `json:"delay_percentage"`
	AverageDelayHours float64          `json:"average_delay_hours"`
	HighRiskShipments int              `json:"high_risk_shipments"`
	AnomaliesDetected int              `json:"anomalies_detected"`
	Trends            []TrendPoint     `json:"trends"`
	RiskDistribution  RiskDistribution `json:"risk_distribution"`
	Predictions       []Prediction     `json:"predictions"`
}

// Report is what the API serves. Success is always true: provider failures
// degrade to a locally computed summary instead of failing the request.
type Report struct {
	Success           bool    `json:"success"`
	Insights          Summary `json:"insights"`
	ProviderAvailable bool    `json:"providerAvailable"`
}

// ShipmentFeatures is the operational feature vector sent to the provider
// for each shipment in the snapshot.
type ShipmentFeatures struct {
	ShipmentID          string  `json:"shipment_id"`
	DistanceKm          float64 `json:"distance_km"`
	TemperatureAvg      float64 `json:"temperature_avg"`
	TemperatureVariance float64 `json:"temperature_variance"`
	CarrierRating       float64 `json:"carrier_rating"`
	PackageWeight       float64 `json:"package_weight"`
	RouteComplexity     int     `json:"route_complexity"`
	WeatherScore        float64 `json:"weather_score"`
	IsFragile           int     `json:"is_fragile"`
	IsExpress           int     `json:"is_express"`
}
