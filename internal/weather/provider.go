package weather

import (
	"context"
	"time"
)

// ProviderReading represents a single provider's normalized reading
// that can be aggregated into an Observation.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	Temperature   float64
	FeelsLike     float64
	Humidity      float64
	Pressure      float64
	WindSpeed     float64
	WindDirection float64
	Description   string
	Icon          string
	LocationName  string
	Condition     Condition
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, Open-Meteo).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location, units Units) (ProviderReading, error)
}

// Store is the contract the in-memory store (and any future persistent store) must satisfy.
type Store interface {
	Save(obs Observation)
	Latest() (Observation, error)
	Range(from, to time.Time) ([]Observation, error)
}
