package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/kelvins/geocoder"
	"github.com/paulmach/orb"

	"github.com/i474232898/weather-slideshow/internal/weather"
)

// geocode is swapped out in tests.
var geocode = func(apiKey string, addr geocoder.Address) (geocoder.Location, error) {
	geocoder.ApiKey = apiKey
	return geocoder.Geocoding(addr)
}

// ResolveLocation returns the weather station. Explicit coordinates win;
// otherwise the city and country are geocoded.
func ResolveLocation(c WeatherConfig) (weather.Location, error) {
	name := c.LocationName
	if name == "" {
		name = strings.Trim(strings.Join([]string{c.City, c.Country}, ", "), ", ")
	}

	if c.Latitude != nil && c.Longitude != nil {
		return weather.Location{Name: name, Point: orb.Point{*c.Longitude, *c.Latitude}}, nil
	}

	if c.City == "" {
		return weather.Location{}, fmt.Errorf("no weather location: set LATITUDE/LONGITUDE or WEATHER_CITY")
	}
	if c.GeocoderAPIKey == "" {
		return weather.Location{}, fmt.Errorf("geocoding %q needs GEOCODER_API_KEY", name)
	}

	loc, err := geocode(c.GeocoderAPIKey, geocoder.Address{City: c.City, Country: c.Country})
	if err != nil {
		return weather.Location{}, fmt.Errorf("geocode %q: %w", name, err)
	}
	log.Printf("INFO: geocoded %s to %.4f,%.4f", name, loc.Latitude, loc.Longitude)
	return weather.Location{Name: name, Point: orb.Point{loc.Longitude, loc.Latitude}}, nil
}
