package radar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/atomic"
	"golang.org/x/image/draw"

	"github.com/i474232898/weather-slideshow/internal/fetch"
)

// URLPrefix is the path the HTTP layer serves the radar directory under.
const URLPrefix = "/uploads/radar/"

const (
	filePrefix = "radar_"
	fileExt    = ".png"

	// maxPayload bounds the downloaded loop; NOAA loops are a few MB.
	maxPayload = 32 << 20
)

// DefaultSourceURL is the NOAA RIDGE standard loop for a station.
const DefaultSourceURL = "https://radar.weather.gov/ridge/standard/%s_loop.gif"

// ErrUnavailable is returned when no capture is on disk.
var ErrUnavailable = errors.New("no radar image available")

// Ref is the most recent radar capture.
type Ref struct {
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"capturedAt"`
	Location   string    `json:"location"`
}

// Status is the radar section of the status endpoint.
type Status struct {
	Connected bool `json:"connected"`
}

// Config holds capture settings.
type Config struct {
	Station      string // NOAA station / region code, e.g. KMLB
	LocationName string
	Dir          string
	SourceURL    string // format string taking the station; defaults to DefaultSourceURL
	Width        int
	Height       int
	Keep         int
}

// Service periodically renders the station loop into a still PNG and keeps
// track of the newest one.
type Service struct {
	cfg     Config
	httpCfg fetch.Config
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time

	connected *atomic.Bool

	mu     sync.Mutex
	latest *Ref
}

// NewService creates the radar directory and returns an idle service.
func NewService(client *http.Client, cfg Config) (*Service, error) {
	if cfg.SourceURL == "" {
		cfg.SourceURL = DefaultSourceURL
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 800, 500
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 3
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create radar directory: %w", err)
	}

	return &Service{
		cfg: cfg,
		httpCfg: fetch.Config{
			Client:  client,
			Backoff: fetch.DefaultBackoff,
		},
		circuit:   fetch.NewBreaker("radar"),
		now:       time.Now,
		connected: atomic.NewBool(false),
	}, nil
}

// Capture downloads the station loop, renders its latest frame and stores it.
// Failures leave the previous capture in place.
func (s *Service) Capture(ctx context.Context) error {
	if s.cfg.Station == "" {
		s.connected.Store(false)
		return fmt.Errorf("radar: no station configured")
	}

	src := fmt.Sprintf(s.cfg.SourceURL, s.cfg.Station)
	log.Printf("INFO: radar: capturing from %s", src)

	resp, err := fetch.Do(ctx, s.httpCfg, s.circuit, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, src, nil)
	})
	if err != nil {
		return fmt.Errorf("radar: fetch: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return fmt.Errorf("radar: read: %w", err)
	}

	img, err := Render(data, s.cfg.Width, s.cfg.Height)
	if err != nil {
		return fmt.Errorf("radar: render: %w", err)
	}

	captured := s.now()
	name := fmt.Sprintf("%s%d%s", filePrefix, captured.UnixMilli(), fileExt)
	if err := writePNG(filepath.Join(s.cfg.Dir, name), img); err != nil {
		return fmt.Errorf("radar: write %s: %w", name, err)
	}

	s.mu.Lock()
	s.latest = &Ref{URL: URLPrefix + name, CapturedAt: captured.UTC(), Location: s.cfg.LocationName}
	s.mu.Unlock()
	s.connected.Store(true)
	log.Printf("INFO: radar: screenshot saved: %s", name)

	s.cleanup()
	return nil
}

// Latest returns the newest capture if its file still exists.
func (s *Service) Latest() (Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return Ref{}, false
	}
	name := strings.TrimPrefix(s.latest.URL, URLPrefix)
	if _, err := os.Stat(filepath.Join(s.cfg.Dir, name)); err != nil {
		log.Printf("WARN: radar: file %s no longer exists", name)
		s.latest = nil
		return Ref{}, false
	}
	return *s.latest, true
}

// Status reports whether captures are being produced.
func (s *Service) Status() Status {
	return Status{Connected: s.connected.Load()}
}

// cleanup keeps the newest Keep captures.
func (s *Service) cleanup() {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		log.Printf("ERROR: radar: cleanup: %v", err)
		return
	}

	type capture struct {
		name string
		mod  time.Time
	}
	var captures []capture
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		captures = append(captures, capture{name: e.Name(), mod: info.ModTime()})
	}
	if len(captures) <= s.cfg.Keep {
		return
	}

	sort.Slice(captures, func(i, j int) bool {
		if captures[i].mod.Equal(captures[j].mod) {
			return captures[i].name > captures[j].name
		}
		return captures[i].mod.After(captures[j].mod)
	})
	for _, c := range captures[s.cfg.Keep:] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, c.name)); err != nil {
			log.Printf("ERROR: radar: failed to delete %s: %v", c.name, err)
			continue
		}
		log.Printf("DEBUG: radar: deleted old screenshot %s", c.name)
	}
}

// Render decodes a radar payload and letterboxes its latest frame into a
// width x height canvas. Animated GIFs are composited frame by frame so the
// result matches what a browser shows at the end of the loop.
func Render(data []byte, width, height int) (image.Image, error) {
	var src image.Image
	if bytes.HasPrefix(data, []byte("GIF8")) {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode gif: %w", err)
		}
		src = compositeGIF(g)
	} else {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		src = img
	}

	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return nil, fmt.Errorf("empty radar image")
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{R: 17, G: 24, B: 39, A: 255}), image.Point{}, draw.Src)

	scale := min(float64(width)/float64(sb.Dx()), float64(height)/float64(sb.Dy()))
	w := int(float64(sb.Dx()) * scale)
	h := int(float64(sb.Dy()) * scale)
	x0 := (width - w) / 2
	y0 := (height - h) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, sb, draw.Over, nil)
	return dst, nil
}

func compositeGIF(g *gif.GIF) image.Image {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) > 0 {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)

	for i, frame := range g.Image {
		var previous *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		last := i == len(g.Image)-1
		if disposal == gif.DisposalPrevious && !last {
			previous = image.NewRGBA(bounds)
			draw.Draw(previous, bounds, canvas, bounds.Min, draw.Src)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		if last {
			break
		}

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			draw.Draw(canvas, bounds, previous, bounds.Min, draw.Src)
		}
	}
	return canvas
}

func writePNG(path string, img image.Image) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
