package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-slideshow/internal/images"
	"github.com/i474232898/weather-slideshow/internal/mail"
	"github.com/i474232898/weather-slideshow/internal/radar"
	"github.com/i474232898/weather-slideshow/internal/slideshow"
	"github.com/i474232898/weather-slideshow/internal/store"
	"github.com/i474232898/weather-slideshow/internal/weather"
)

var validate = validator.New()

const (
	controlTimeout = 5 * time.Second
	maxUploadSize  = 25 << 20
)

type WeatherService interface {
	Current(ctx context.Context) (weather.Observation, error)
	History(from, to time.Time) ([]weather.Observation, error)
	Status() weather.Status
}

type ImageService interface {
	URLs() []string
	Lookup(url string) (images.Image, bool)
	Save(originalName string, data []byte) (string, error)
	Delete(name string) (bool, error)
	Status() images.Status
}

type RadarService interface {
	Latest() (radar.Ref, bool)
	Status() radar.Status
}

type MailService interface {
	Status() mail.Status
}

// Slideshow is the display driver.
type Slideshow interface {
	Frame() slideshow.Frame
	Next(ctx context.Context) (slideshow.Frame, error)
	Previous(ctx context.Context) (slideshow.Frame, error)
	Toggle(ctx context.Context) (slideshow.Frame, error)
	Gesture(ctx context.Context, g slideshow.Gesture) (slideshow.Intent, slideshow.Frame, error)
	SetViewport(ctx context.Context, width, height float64) (slideshow.Frame, error)
	RadarLoaded(ctx context.Context, token uint64) (slideshow.Frame, bool, error)
	RadarFailed(ctx context.Context, token uint64, reason string) (slideshow.Frame, bool, error)
	Refresh(ctx context.Context) (slideshow.Frame, error)
	Subscribe() (string, <-chan slideshow.Frame, func())
}

// Deps are the services behind the API. Radar and Mail may be nil when the
// feature is not configured.
type Deps struct {
	Weather   WeatherService
	Images    ImageService
	Radar     RadarService
	Mail      MailService
	Slideshow Slideshow

	RadarLocation string
	Now           func() time.Time
}

// ErrorHandler renders errors returned from handlers as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handlers{deps: deps}

	api := app.Group("/api")

	api.Get("/weather", h.currentWeather)
	api.Get("/weather/history", h.weatherHistory)
	api.Get("/images", h.listImages)
	api.Post("/images", h.uploadImages)
	api.Delete("/images/:name", h.deleteImage)
	api.Get("/radar", h.latestRadar)
	api.Get("/status", h.status)
	api.Get("/fit", h.fit)
	api.Get("/slideshow", h.frame)

	show := api.Group("/slideshow")
	show.Get("/events", h.events)
	show.Post("/next", h.control(deps.Slideshow.Next))
	show.Post("/previous", h.control(deps.Slideshow.Previous))
	show.Post("/toggle", h.control(deps.Slideshow.Toggle))
	show.Post("/gesture", h.gesture)
	show.Post("/viewport", h.viewport)
	show.Post("/radar/loaded", h.radarLoaded)
	show.Post("/radar/failed", h.radarFailed)
}

type handlers struct {
	deps Deps
}

func (h *handlers) currentWeather(c *fiber.Ctx) error {
	obs, err := h.deps.Weather.Current(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch weather data"})
	}
	return c.JSON(obs)
}

func (h *handlers) weatherHistory(c *fiber.Ctx) error {
	var req historyQuery
	if err := req.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	observations, err := h.deps.Weather.History(req.From, req.To)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
	}

	return c.JSON(fiber.Map{
		"from":         req.From,
		"to":           req.To,
		"observations": observations,
	})
}

func (h *handlers) listImages(c *fiber.Ctx) error {
	urls := h.deps.Images.URLs()
	if urls == nil {
		urls = []string{}
	}
	return c.JSON(urls)
}

func (h *handlers) uploadImages(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart form with images")
	}
	files := form.File["images"]
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no images in request")
	}

	saved := make([]string, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxUploadSize {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("%s is too large", fh.Filename))
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}

		name, err := h.deps.Images.Save(fh.Filename, data)
		if err != nil {
			if errors.Is(err, images.ErrNotImage) {
				return fiber.NewError(fiber.StatusUnsupportedMediaType, fmt.Sprintf("%s: %v", fh.Filename, err))
			}
			return err
		}
		saved = append(saved, images.URLPrefix+name)
	}

	h.refresh(c)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"saved": saved})
}

func (h *handlers) deleteImage(c *fiber.Ctx) error {
	found, err := h.deps.Images.Delete(c.Params("name"))
	if err != nil {
		if errors.Is(err, images.ErrInvalidName) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}
	if !found {
		return fiber.NewError(fiber.StatusNotFound, "image not found")
	}

	h.refresh(c)
	return c.SendStatus(fiber.StatusNoContent)
}

// refresh makes the display pick up an image change now instead of on the
// next poll. A stopped display is not an error for the caller.
func (h *handlers) refresh(c *fiber.Ctx) {
	ctx, cancel := context.WithTimeout(c.UserContext(), controlTimeout)
	defer cancel()
	_, _ = h.deps.Slideshow.Refresh(ctx)
}

func (h *handlers) latestRadar(c *fiber.Ctx) error {
	if h.deps.Radar == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No radar image available"})
	}
	ref, ok := h.deps.Radar.Latest()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No radar image available"})
	}

	location := ref.Location
	if location == "" {
		location = h.deps.RadarLocation
	}
	return c.JSON(fiber.Map{
		"radarUrl":  fmt.Sprintf("%s?t=%d", ref.URL, h.deps.Now().UnixMilli()),
		"timestamp": ref.CapturedAt.UnixMilli(),
		"location":  location,
	})
}

func (h *handlers) status(c *fiber.Ctx) error {
	var (
		mailStatus  mail.Status
		radarStatus radar.Status
	)
	if h.deps.Mail != nil {
		mailStatus = h.deps.Mail.Status()
	}
	if h.deps.Radar != nil {
		radarStatus = h.deps.Radar.Status()
	}

	return c.JSON(fiber.Map{
		"email":   mailStatus,
		"weather": h.deps.Weather.Status(),
		"images":  h.deps.Images.Status(),
		"radar":   radarStatus,
	})
}

// fitQuery takes either explicit image dimensions or a stored image URL.
type fitQuery struct {
	Image          string  `query:"image"`
	ImageWidth     float64 `query:"imageWidth" validate:"gte=0"`
	ImageHeight    float64 `query:"imageHeight" validate:"gte=0"`
	ViewportWidth  float64 `query:"viewportWidth" validate:"gt=0"`
	ViewportHeight float64 `query:"viewportHeight" validate:"gt=0"`
}

func (h *handlers) fit(c *fiber.Ctx) error {
	var q fitQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var ratio float64
	switch {
	case q.ImageWidth > 0 && q.ImageHeight > 0:
		ratio = q.ImageWidth / q.ImageHeight
	case q.Image == "":
		return fiber.NewError(fiber.StatusBadRequest, "imageWidth and imageHeight or image are required")
	default:
		img, ok := h.deps.Images.Lookup(q.Image)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "image not found")
		}
		ratio = img.AspectRatio()
	}
	viewport := q.ViewportWidth / q.ViewportHeight

	return c.JSON(fiber.Map{
		"orientation": slideshow.Classify(ratio),
		"fit":         slideshow.Fit(ratio, viewport),
	})
}

func (h *handlers) frame(c *fiber.Ctx) error {
	return c.JSON(h.deps.Slideshow.Frame())
}

func (h *handlers) control(fn func(context.Context) (slideshow.Frame, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), controlTimeout)
		defer cancel()

		f, err := fn(ctx)
		if err != nil {
			return slideshowError(err)
		}
		return c.JSON(f)
	}
}

type gestureRequest struct {
	DX         float64 `json:"dx"`
	DY         float64 `json:"dy"`
	DurationMs int64   `json:"durationMs" validate:"gte=0"`
}

func (h *handlers) gesture(c *fiber.Ctx) error {
	var req gestureRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), controlTimeout)
	defer cancel()

	intent, f, err := h.deps.Slideshow.Gesture(ctx, slideshow.Gesture{
		DX:       req.DX,
		DY:       req.DY,
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
	})
	if err != nil {
		return slideshowError(err)
	}
	return c.JSON(fiber.Map{"intent": intent, "frame": f})
}

type viewportRequest struct {
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

func (h *handlers) viewport(c *fiber.Ctx) error {
	var req viewportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), controlTimeout)
	defer cancel()

	f, err := h.deps.Slideshow.SetViewport(ctx, req.Width, req.Height)
	if err != nil {
		return slideshowError(err)
	}
	return c.JSON(f)
}

type radarReport struct {
	Token  uint64 `json:"token" validate:"required"`
	Reason string `json:"reason" validate:"max=200"`
}

func (h *handlers) radarLoaded(c *fiber.Ctx) error {
	return h.radarReport(c, func(ctx context.Context, r radarReport) (slideshow.Frame, bool, error) {
		return h.deps.Slideshow.RadarLoaded(ctx, r.Token)
	})
}

func (h *handlers) radarFailed(c *fiber.Ctx) error {
	return h.radarReport(c, func(ctx context.Context, r radarReport) (slideshow.Frame, bool, error) {
		reason := r.Reason
		if reason == "" {
			reason = "Failed to load radar image"
		}
		return h.deps.Slideshow.RadarFailed(ctx, r.Token, reason)
	})
}

func (h *handlers) radarReport(c *fiber.Ctx, apply func(context.Context, radarReport) (slideshow.Frame, bool, error)) error {
	var req radarReport
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), controlTimeout)
	defer cancel()

	f, accepted, err := apply(ctx, req)
	if err != nil {
		return slideshowError(err)
	}
	return c.JSON(fiber.Map{"accepted": accepted, "frame": f})
}

func slideshowError(err error) error {
	switch {
	case errors.Is(err, slideshow.ErrStopped):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "slideshow did not respond")
	}
	return err
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (q *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	q.From = from
	q.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
