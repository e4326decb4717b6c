package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-slideshow/internal/weather"
)

var (
	// ErrNotFound is returned when no observation matches the request.
	ErrNotFound = errors.New("no weather data")
)

// MemoryStore is a concurrency-safe in-memory history of weather observations
// for the configured station, oldest first.
type MemoryStore struct {
	mu sync.RWMutex

	observations []weather.Observation

	// retention configuration
	maxHistory int           // max number of observations kept
	maxAge     time.Duration // optional max age for observations
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Save appends a new observation and enforces retention.
func (s *MemoryStore) Save(obs weather.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observations = append(s.observations, obs)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.observations) > s.maxHistory {
		over := len(s.observations) - s.maxHistory
		s.observations = s.observations[over:]
	}

	// Enforce retention by age; the newest observation always survives.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.observations)-1; i++ {
			if !s.observations[i].Timestamp.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.observations = s.observations[i:]
		}
	}
}

// Latest returns the most recent observation.
func (s *MemoryStore) Latest() (weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.observations) == 0 {
		return weather.Observation{}, ErrNotFound
	}
	return s.observations[len(s.observations)-1], nil
}

// Range returns all observations between from and to (inclusive).
func (s *MemoryStore) Range(from, to time.Time) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Observation
	for _, obs := range s.observations {
		if !obs.Timestamp.Before(from) && !obs.Timestamp.After(to) {
			result = append(result, obs)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
