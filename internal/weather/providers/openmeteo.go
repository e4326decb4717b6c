package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-slideshow/internal/fetch"
	"github.com/i474232898/weather-slideshow/internal/weather"
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It needs no API key and serves as the fallback source.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg fetch.Config
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: fetch.Config{
			Client:  client,
			Backoff: fetch.DefaultBackoff,
		},
		circuit: fetch.NewBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units) (weather.ProviderReading, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(loc.Lat(), 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(loc.Lon(), 'f', -1, 64))
		values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,surface_pressure,wind_speed_10m,wind_direction_10m,weather_code,is_day")
		values.Set("timeformat", "unixtime")
		if units == weather.UnitsImperial {
			values.Set("temperature_unit", "fahrenheit")
			values.Set("wind_speed_unit", "mph")
		} else {
			values.Set("wind_speed_unit", "ms")
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := fetch.Do(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.ProviderReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time                int64   `json:"time"`
			Temperature         float64 `json:"temperature_2m"`
			ApparentTemperature float64 `json:"apparent_temperature"`
			RelativeHumidity    float64 `json:"relative_humidity_2m"`
			SurfacePressure     float64 `json:"surface_pressure"`
			WindSpeed           float64 `json:"wind_speed_10m"`
			WindDirection       float64 `json:"wind_direction_10m"`
			WeatherCode         int     `json:"weather_code"`
			IsDay               int     `json:"is_day"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, fmt.Errorf("decode openmeteo response: %w", err)
	}

	ts := time.Now().UTC()
	if payload.Current.Time > 0 {
		ts = time.Unix(payload.Current.Time, 0).UTC()
	}

	code := payload.Current.WeatherCode
	return weather.ProviderReading{
		ProviderName:  p.name,
		Timestamp:     ts,
		Temperature:   payload.Current.Temperature,
		FeelsLike:     payload.Current.ApparentTemperature,
		Humidity:      payload.Current.RelativeHumidity,
		Pressure:      payload.Current.SurfacePressure,
		WindSpeed:     payload.Current.WindSpeed,
		WindDirection: payload.Current.WindDirection,
		Description:   openMeteoDescription(code),
		Icon:          openMeteoIcon(code, payload.Current.IsDay == 1),
		LocationName:  loc.Name,
		Condition:     mapOpenMeteoCondition(code),
	}, nil
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on WMO weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}

func openMeteoDescription(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code == 1:
		return "mainly clear"
	case code == 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}

// openMeteoIcon maps a WMO code to the OpenWeatherMap icon set the display uses.
func openMeteoIcon(code int, day bool) string {
	var base string
	switch {
	case code == 0:
		base = "01"
	case code == 1:
		base = "02"
	case code == 2:
		base = "03"
	case code == 3:
		base = "04"
	case code == 45 || code == 48:
		base = "50"
	case code >= 51 && code <= 67:
		base = "10"
	case code >= 80 && code <= 82:
		base = "09"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		base = "13"
	case code >= 95:
		base = "11"
	default:
		return ""
	}
	if day {
		return base + "d"
	}
	return base + "n"
}
