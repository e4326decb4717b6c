package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-slideshow/internal/common"
)

const defaultConfigFile = "slideshow.yaml"

var validate = validator.New()

// AppConfig is the full process configuration. Values come from defaults,
// then the optional YAML file, then the environment.
type AppConfig struct {
	Port        string   `yaml:"port" validate:"required,numeric"`
	PublicDir   string   `yaml:"public_dir"`
	HTTPTimeout Duration `yaml:"http_timeout"`

	Email     EmailConfig     `yaml:"email"`
	Weather   WeatherConfig   `yaml:"weather"`
	Radar     RadarConfig     `yaml:"radar"`
	Images    ImagesConfig    `yaml:"images"`
	Slideshow SlideshowConfig `yaml:"slideshow"`
	Store     StoreConfig     `yaml:"store"`
}

// EmailConfig configures the IMAP inbox photos are mailed to. Mail ingestion
// is off when Host is empty.
type EmailConfig struct {
	Host               string   `yaml:"host" validate:"omitempty,hostname|ip"`
	Port               int      `yaml:"port" validate:"min=1,max=65535"`
	User               string   `yaml:"user" validate:"required_with=Host"`
	Password           string   `yaml:"password"`
	Folder             string   `yaml:"folder" validate:"required"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	AllowedEmails      []string `yaml:"allowed_emails"`
	RequiredSubject    []string `yaml:"required_subject"`
	CheckInterval      Duration `yaml:"check_interval"`
}

type WeatherConfig struct {
	OpenWeatherAPIKey string   `yaml:"openweather_api_key"`
	Latitude          *float64 `yaml:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude         *float64 `yaml:"longitude" validate:"omitempty,gte=-180,lte=180"`
	LocationName      string   `yaml:"location_name"`
	City              string   `yaml:"city"`
	Country           string   `yaml:"country"`
	GeocoderAPIKey    string   `yaml:"geocoder_api_key"`
	Units             string   `yaml:"units" validate:"oneof=imperial metric"`
	UpdateInterval    Duration `yaml:"update_interval"`
}

// RadarConfig configures the NOAA capture. Radar is off when Station is empty.
type RadarConfig struct {
	Station        string   `yaml:"station" validate:"omitempty,alphanum"`
	LocationName   string   `yaml:"location_name"`
	Directory      string   `yaml:"directory" validate:"required"`
	SourceURL      string   `yaml:"source_url"`
	UpdateInterval Duration `yaml:"update_interval"`
}

type ImagesConfig struct {
	Directory       string   `yaml:"directory" validate:"required"`
	MaxImages       int      `yaml:"max_images" validate:"min=1"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

type SlideshowConfig struct {
	RadarFrequency int      `yaml:"radar_frequency" validate:"min=2"`
	Dwell          Duration `yaml:"dwell"`
	ProgressTick   Duration `yaml:"progress_tick"`
	ImagePoll      Duration `yaml:"image_poll"`
	RadarTimeout   Duration `yaml:"radar_timeout"`
}

// StoreConfig bounds the in-memory weather history.
type StoreConfig struct {
	MaxHistory int      `yaml:"max_history" validate:"min=0"` // 0 = unlimited
	MaxAge     Duration `yaml:"max_age"`                      // 0 = unlimited
}

// Default returns the configuration used when nothing is set.
func Default() *AppConfig {
	return &AppConfig{
		Port:        "3000",
		PublicDir:   "./public",
		HTTPTimeout: Duration(15 * time.Second),
		Email: EmailConfig{
			Port:            993,
			Folder:          "INBOX",
			RequiredSubject: []string{"slideshow"},
			CheckInterval:   Duration(30 * time.Second),
		},
		Weather: WeatherConfig{
			Units:          "imperial",
			UpdateInterval: Duration(10 * time.Minute),
		},
		Radar: RadarConfig{
			Directory:      "./uploads/radar",
			UpdateInterval: Duration(5 * time.Minute),
		},
		Images: ImagesConfig{
			Directory:       "./uploads/images",
			MaxImages:       100,
			CleanupInterval: Duration(time.Hour),
		},
		Slideshow: SlideshowConfig{
			RadarFrequency: 5,
			Dwell:          Duration(5 * time.Second),
			ProgressTick:   Duration(50 * time.Millisecond),
			ImagePoll:      Duration(30 * time.Second),
			RadarTimeout:   Duration(10 * time.Second),
		},
		Store: StoreConfig{
			MaxHistory: 144, // a day at 10-minute refreshes
			MaxAge:     Duration(24 * time.Hour),
		},
	}
}

// Load reads configuration from .env, the optional YAML file and the
// environment, then validates it.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	required := path != ""
	if !required {
		path = defaultConfigFile
	}
	if err := cfg.loadFile(path, required); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	log.Printf("INFO: loaded config file %s", path)
	return nil
}

func (c *AppConfig) applyEnv() error {
	e := &envReader{}

	e.setString("PORT", &c.Port)
	e.setString("PUBLIC_DIRECTORY", &c.PublicDir)
	e.setDuration("HTTP_TIMEOUT", &c.HTTPTimeout)

	e.setString("EMAIL_HOST", &c.Email.Host)
	e.setInt("EMAIL_PORT", &c.Email.Port)
	e.setString("EMAIL_USER", &c.Email.User)
	e.setString("EMAIL_PASSWORD", &c.Email.Password)
	e.setString("EMAIL_FOLDER", &c.Email.Folder)
	e.setBool("EMAIL_INSECURE_SKIP_VERIFY", &c.Email.InsecureSkipVerify)
	e.setList("ALLOWED_EMAILS", &c.Email.AllowedEmails)
	e.setList("REQUIRED_SUBJECT", &c.Email.RequiredSubject)
	e.setDuration("EMAIL_CHECK_INTERVAL", &c.Email.CheckInterval)

	e.setString("OPENWEATHER_API_KEY", &c.Weather.OpenWeatherAPIKey)
	e.setFloat("LATITUDE", &c.Weather.Latitude)
	e.setFloat("LONGITUDE", &c.Weather.Longitude)
	e.setString("LOCATION_NAME", &c.Weather.LocationName)
	e.setString("WEATHER_CITY", &c.Weather.City)
	e.setString("WEATHER_COUNTRY", &c.Weather.Country)
	e.setString("GEOCODER_API_KEY", &c.Weather.GeocoderAPIKey)
	e.setString("UNITS", &c.Weather.Units)
	e.setDuration("WEATHER_UPDATE_INTERVAL", &c.Weather.UpdateInterval)

	e.setString("NOAA_LOCATION", &c.Radar.Station)
	e.setString("RADAR_LOCATION_NAME", &c.Radar.LocationName)
	e.setString("RADAR_DIRECTORY", &c.Radar.Directory)
	e.setString("RADAR_SOURCE_URL", &c.Radar.SourceURL)
	e.setDuration("RADAR_UPDATE_INTERVAL", &c.Radar.UpdateInterval)

	e.setString("IMAGE_DIRECTORY", &c.Images.Directory)
	e.setInt("MAX_IMAGES", &c.Images.MaxImages)
	e.setDuration("IMAGE_CLEANUP_INTERVAL", &c.Images.CleanupInterval)

	e.setInt("RADAR_FREQUENCY", &c.Slideshow.RadarFrequency)
	e.setDuration("SLIDE_DWELL", &c.Slideshow.Dwell)
	e.setDuration("PROGRESS_TICK", &c.Slideshow.ProgressTick)
	e.setDuration("IMAGE_POLL_INTERVAL", &c.Slideshow.ImagePoll)
	e.setDuration("RADAR_TIMEOUT", &c.Slideshow.RadarTimeout)

	e.setInt("STORE_MAX_HISTORY", &c.Store.MaxHistory)
	e.setDuration("STORE_MAX_AGE", &c.Store.MaxAge)

	return errors.Join(e.errs...)
}

// Validate checks field constraints and that every interval is positive.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	intervals := map[string]Duration{
		"http_timeout":            c.HTTPTimeout,
		"email.check_interval":    c.Email.CheckInterval,
		"weather.update_interval": c.Weather.UpdateInterval,
		"radar.update_interval":   c.Radar.UpdateInterval,
		"images.cleanup_interval": c.Images.CleanupInterval,
		"slideshow.dwell":         c.Slideshow.Dwell,
		"slideshow.progress_tick": c.Slideshow.ProgressTick,
		"slideshow.image_poll":    c.Slideshow.ImagePoll,
		"slideshow.radar_timeout": c.Slideshow.RadarTimeout,
	}
	var errs []error
	for name, d := range intervals {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("invalid config: %s must be positive", name))
		}
	}
	if c.Store.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("invalid config: store.max_age must not be negative"))
	}
	if (c.Weather.Latitude == nil) != (c.Weather.Longitude == nil) {
		errs = append(errs, fmt.Errorf("invalid config: latitude and longitude must be set together"))
	}
	return errors.Join(errs...)
}

// EmailEnabled reports whether an inbox is configured.
func (c *AppConfig) EmailEnabled() bool { return c.Email.Host != "" }

// RadarEnabled reports whether a NOAA station is configured.
func (c *AppConfig) RadarEnabled() bool { return c.Radar.Station != "" }

type envReader struct {
	errs []error
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) setList(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = common.SplitList(v)
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) setFloat(key string, dst **float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = &f
}

func (e *envReader) setBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = b
}

func (e *envReader) setDuration(key string, dst *Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = Duration(d)
}
