package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ErrNoObservation is returned when no provider has produced data yet.
var ErrNoObservation = errors.New("no weather data available")

// Service orchestrates fetching from multiple providers and persisting observations.
type Service struct {
	store     Store
	providers []Provider
	location  Location
	units     Units

	connected  *atomic.Bool
	lastUpdate *atomic.Int64 // unix millis, 0 = never
}

// NewService creates a new Service. Providers are listed in priority order.
func NewService(store Store, providers []Provider, loc Location, units Units) *Service {
	if units == "" {
		units = UnitsImperial
	}
	return &Service{
		store:      store,
		providers:  providers,
		location:   loc,
		units:      units,
		connected:  atomic.NewBool(false),
		lastUpdate: atomic.NewInt64(0),
	}
}

// Refresh fetches data from all providers concurrently, aggregates successful
// readings, and stores an observation. When every provider fails the last
// good observation stays in place and the service reports itself disconnected.
func (s *Service) Refresh(ctx context.Context) error {
	if len(s.providers) == 0 {
		s.connected.Store(false)
		log.Printf("ERROR: weather: no providers available for %s", s.location.Name)
		return fmt.Errorf("no weather providers configured")
	}

	var wg sync.WaitGroup
	results := make([]*ProviderReading, len(s.providers))

	for i, p := range s.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()

			r, err := p.Fetch(ctx, s.location, s.units)
			if err != nil {
				// Log and continue; we want partial success when possible.
				log.Printf("weather: provider %s fetch failed for %s: %v", p.Name(), s.location.Name, err)
				return
			}
			results[i] = &r
		}(i, p)
	}

	wg.Wait()

	readings := make([]ProviderReading, 0, len(results))
	for _, r := range results {
		if r != nil {
			readings = append(readings, *r)
		}
	}

	if len(readings) == 0 {
		s.connected.Store(false)
		log.Printf("WARN: weather: no successful provider readings for %s; keeping last good observation if any", s.location.Name)
		return fmt.Errorf("all %d weather providers failed", len(s.providers))
	}

	obs := AggregateReadings(s.location, readings)
	s.store.Save(obs)

	now := time.Now()
	s.lastUpdate.Store(now.UnixMilli())
	s.connected.Store(true)
	log.Printf("INFO: weather: updated %.1f (%s) in %s from %d provider(s)", obs.Temperature, s.units, obs.Location, len(readings))
	return nil
}

// Current returns the latest observation, refreshing once if nothing has been
// stored yet.
func (s *Service) Current(ctx context.Context) (Observation, error) {
	obs, err := s.store.Latest()
	if err == nil {
		return obs, nil
	}

	if rerr := s.Refresh(ctx); rerr != nil {
		return Observation{}, fmt.Errorf("%w: %v", ErrNoObservation, rerr)
	}
	obs, err = s.store.Latest()
	if err != nil {
		return Observation{}, ErrNoObservation
	}
	return obs, nil
}

// History delegates to the underlying store.
func (s *Service) History(from, to time.Time) ([]Observation, error) {
	return s.store.Range(from, to)
}

// Status reports whether the last refresh succeeded and when data last arrived.
func (s *Service) Status() Status {
	st := Status{Connected: s.connected.Load()}
	if ms := s.lastUpdate.Load(); ms > 0 {
		t := time.UnixMilli(ms).UTC()
		st.LastUpdate = &t
	}
	return st
}
