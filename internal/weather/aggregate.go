package weather

import "time"

// AggregateReadings combines multiple provider readings into a single Observation.
// Numeric fields are averaged except wind direction, which is an angle and is
// taken from the first reading like the text fields (description, icon,
// location name), so readings must be passed in
// provider priority order. Conditions are selected by majority, ties going to
// the higher-priority reading.
func AggregateReadings(loc Location, readings []ProviderReading) Observation {
	if len(readings) == 0 {
		return Observation{
			Location:  loc.Name,
			Timestamp: time.Now().UTC(),
			Condition: ConditionUnknown,
		}
	}

	var (
		sumTemp      float64
		sumFeels     float64
		sumHumidity  float64
		sumWind      float64
		sumPressure  float64
		pressureSeen int
	)

	conditionCounts := make(map[Condition]int)
	providers := make([]ProviderContribution, 0, len(readings))
	var newestTS time.Time
	var description, icon, name string
	windDir := readings[0].WindDirection

	for _, r := range readings {
		sumTemp += r.Temperature
		sumFeels += r.FeelsLike
		sumHumidity += r.Humidity
		sumWind += r.WindSpeed
		if r.Pressure > 0 {
			sumPressure += r.Pressure
			pressureSeen++
		}

		conditionCounts[r.Condition]++

		if description == "" {
			description = r.Description
		}
		if icon == "" {
			icon = r.Icon
		}
		if name == "" {
			name = r.LocationName
		}

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}

		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp,
		})
	}

	n := float64(len(readings))

	// Majority condition; iterate readings rather than the map for a stable tie-break.
	bestCond := ConditionUnknown
	bestCount := 0
	for _, r := range readings {
		if count := conditionCounts[r.Condition]; count > bestCount {
			bestCount = count
			bestCond = r.Condition
		}
	}

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}
	if name == "" {
		name = loc.Name
	}

	var pressure float64
	if pressureSeen > 0 {
		pressure = sumPressure / float64(pressureSeen)
	}

	return Observation{
		Temperature:   sumTemp / n,
		FeelsLike:     sumFeels / n,
		Humidity:      sumHumidity / n,
		Pressure:      pressure,
		WindSpeed:     sumWind / n,
		WindDirection: windDir,
		Description:   description,
		Icon:          icon,
		Condition:     bestCond,
		Location:      name,
		Timestamp:     newestTS,
		Providers:     providers,
	}
}
