package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-slideshow/internal/api/http"
	"github.com/i474232898/weather-slideshow/internal/config"
	"github.com/i474232898/weather-slideshow/internal/images"
	"github.com/i474232898/weather-slideshow/internal/mail"
	"github.com/i474232898/weather-slideshow/internal/radar"
	"github.com/i474232898/weather-slideshow/internal/scheduler"
	"github.com/i474232898/weather-slideshow/internal/slideshow"
	"github.com/i474232898/weather-slideshow/internal/store"
	"github.com/i474232898/weather-slideshow/internal/weather"
	"github.com/i474232898/weather-slideshow/internal/weather/providers"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: https://openweathermap.org; " +
	"script-src 'self'; connect-src 'self'"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout.D(),
	}

	imageStore, err := images.NewStore(cfg.Images.Directory)
	if err != nil {
		log.Fatalf("failed to open image store: %v", err)
	}

	// Weather: OpenWeatherMap first when a key is set, Open-Meteo as the keyless fallback.
	location, err := config.ResolveLocation(cfg.Weather)
	if err != nil {
		log.Fatalf("failed to resolve weather location: %v", err)
	}
	var provs []weather.Provider
	if cfg.Weather.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.Weather.OpenWeatherAPIKey))
	}
	provs = append(provs, providers.NewOpenMeteoProvider(httpClient))

	memStore := store.NewMemoryStore(cfg.Store.MaxHistory, cfg.Store.MaxAge.D())
	weatherService := weather.NewService(memStore, provs, location, weather.Units(cfg.Weather.Units))

	sched := scheduler.New()
	mustAdd := func(job scheduler.Job) {
		if err := sched.Add(job); err != nil {
			log.Fatalf("failed to schedule %s: %v", job.Name, err)
		}
	}

	mustAdd(scheduler.Job{
		Name:     "weather",
		Interval: cfg.Weather.UpdateInterval.D(),
		Timeout:  time.Minute,
		Run:      weatherService.Refresh,
	})

	mustAdd(scheduler.Job{
		Name:     "image-cleanup",
		Interval: cfg.Images.CleanupInterval.D(),
		Run: func(context.Context) error {
			_, err := imageStore.Cleanup(cfg.Images.MaxImages)
			return err
		},
	})

	deps := httpapi.Deps{
		Weather:       weatherService,
		Images:        imageStore,
		RadarLocation: cfg.Radar.LocationName,
	}

	var radarSource slideshow.RadarSource
	if cfg.RadarEnabled() {
		radarService, err := radar.NewService(httpClient, radar.Config{
			Station:      cfg.Radar.Station,
			LocationName: cfg.Radar.LocationName,
			Dir:          cfg.Radar.Directory,
			SourceURL:    cfg.Radar.SourceURL,
		})
		if err != nil {
			log.Fatalf("failed to set up radar: %v", err)
		}
		mustAdd(scheduler.Job{
			Name:     "radar",
			Interval: cfg.Radar.UpdateInterval.D(),
			Timeout:  2 * time.Minute,
			Run:      radarService.Capture,
		})
		radarSource = radarService
		deps.Radar = radarService
	} else {
		log.Printf("WARN: NOAA_LOCATION not set; radar slides disabled")
	}

	if cfg.EmailEnabled() {
		mailbox := mail.NewIMAPMailbox(mail.IMAPConfig{
			Host:               cfg.Email.Host,
			Port:               cfg.Email.Port,
			User:               cfg.Email.User,
			Password:           cfg.Email.Password,
			Folder:             cfg.Email.Folder,
			InsecureSkipVerify: cfg.Email.InsecureSkipVerify,
			Timeout:            cfg.HTTPTimeout.D(),
		})
		poller := mail.NewPoller(mailbox, mail.Filter{
			AllowedSenders:  cfg.Email.AllowedEmails,
			SubjectKeywords: cfg.Email.RequiredSubject,
		}, imageStore)
		defer poller.Stop()

		mustAdd(scheduler.Job{
			Name:     "mail",
			Interval: cfg.Email.CheckInterval.D(),
			Timeout:  2 * time.Minute,
			Run:      poller.Poll,
		})
		deps.Mail = poller
	} else {
		log.Printf("WARN: EMAIL_HOST not set; mail ingestion disabled")
	}

	// Display driver.
	driver := slideshow.NewDriver(slideshow.DriverConfig{
		Sequencer: slideshow.SequencerConfig{
			RadarFrequency: cfg.Slideshow.RadarFrequency,
			Dwell:          cfg.Slideshow.Dwell.D(),
			ProgressTick:   cfg.Slideshow.ProgressTick.D(),
			RadarEnabled:   true,
		},
		Gesture:      slideshow.DefaultGestureConfig(),
		RadarTimeout: cfg.Slideshow.RadarTimeout.D(),
		ImagePoll:    cfg.Slideshow.ImagePoll.D(),
	}, imageStore, radarSource)
	deps.Slideshow = driver

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := driver.Run(ctx); err != nil {
			log.Printf("ERROR: slideshow driver stopped: %v", err)
		}
	}()

	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-slideshow",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		BodyLimit:             64 << 20,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(helmet.New(helmet.Config{ContentSecurityPolicy: contentSecurityPolicy}))
	app.Use(cors.New())
	app.Use(compress.New(compress.Config{
		// Compression would buffer the event stream.
		Next: func(c *fiber.Ctx) bool { return c.Path() == "/api/slideshow/events" },
	}))

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-slideshow",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, deps)

	app.Static(images.URLPrefix, imageStore.Dir())
	app.Static(radar.URLPrefix, cfg.Radar.Directory, fiber.Static{CacheDuration: -1})
	app.Static("/", cfg.PublicDir, fiber.Static{Index: "index.html"})

	go func() {
		log.Printf("INFO: slideshow listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	<-driverDone
}
