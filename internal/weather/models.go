package weather

import (
	"time"

	"github.com/paulmach/orb"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Units selects the measurement system requested from providers.
type Units string

const (
	UnitsImperial Units = "imperial"
	UnitsMetric   Units = "metric"
)

// Location is the single station the display reports on.
type Location struct {
	Name  string    `json:"name"`
	Point orb.Point `json:"-"`
}

// Lat returns the station latitude.
func (l Location) Lat() float64 { return l.Point.Lat() }

// Lon returns the station longitude.
func (l Location) Lon() float64 { return l.Point.Lon() }

// Observation is the aggregated current-conditions snapshot shown on the display.
// It is replaced wholesale on every successful refresh.
type Observation struct {
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"` // hPa
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	Condition     Condition `json:"condition"`
	Location      string    `json:"location"`
	Timestamp     time.Time `json:"timestamp"` // always UTC

	// Providers contributing to this observation.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
}

// Status reports weather source health for the status endpoint.
type Status struct {
	Connected  bool       `json:"connected"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}
